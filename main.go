package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/classkeep/license-api/api/handlers"
	"github.com/classkeep/license-api/api/scheduler"
	"github.com/classkeep/license-api/config"
	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/notifications"
)

func main() {
	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil { //initialize database and router
		log.Fatal(err)
	}

	dbHelper := a.DBHelper()
	licenseDB := databases.NewLicenseDatabase(dbHelper)
	accountDB := databases.NewAccountDatabase(dbHelper)
	notifier := notifications.NewSendGridNotifier()
	sweep := scheduler.NewScheduler(
		licenseDB,
		databases.NewSchedulerLockDatabase(dbHelper),
		licensing.Cascade{
			Licenses: licenseDB,
			Accounts: accountDB,
			Resolver: licensing.AccountDependentResolver{DB: accountDB},
			Notifier: notifier,
		},
		notifier,
	)
	sweep.Start()
	defer sweep.Stop()

	port := os.Getenv("PORT")
	baseURL := os.Getenv("BASE_URL")
	zap.S().Infow("license-api is up and running",
		"port", port,
		"url", baseURL,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", port), a.Router))
}
