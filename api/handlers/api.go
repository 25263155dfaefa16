package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/api"
	"github.com/classkeep/license-api/config"
	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/notifications"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router   *mux.Router
	Config   config.Config
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewAccountDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	licenseDB := databases.NewLicenseDatabase(a.dbHelper)
	accountDB := databases.NewAccountDatabase(a.dbHelper)
	notifier := notifications.NewSendGridNotifier()

	cascade := licensing.Cascade{
		Licenses: licenseDB,
		Accounts: accountDB,
		Resolver: licensing.AccountDependentResolver{DB: accountDB},
		Notifier: notifier,
	}

	l := License{
		DB:       licenseDB,
		ADB:      accountDB,
		Issuer:   licensing.Issuer{DB: licenseDB, Validity: a.Config.LicenseValidity},
		Claimer:  licensing.Claimer{DB: licenseDB},
		Invites:  licensing.Invitations{Licenses: licenseDB},
		Notifier: notifier,
		Subscriptions: licensing.Subscriptions{
			Licenses:    licenseDB,
			Cascade:     cascade,
			Notifier:    notifier,
			Validity:    a.Config.LicenseValidity,
			GraceLength: a.Config.GracePeriodLength,
		},
	}
	access := Access{
		Gate: licensing.Gate{Accounts: accountDB, Licenses: licenseDB, Cascade: cascade},
	}
	payment := Payment{
		Subscriptions: l.Subscriptions,
	}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/licenses", api.Middleware(http.HandlerFunc(l.IssueLicenseHandler))).Methods("POST")
	apiCreate.Handle("/licenses/{license_code}", api.Middleware(http.HandlerFunc(l.LicenseByCodeHandler))).Methods("GET")
	apiCreate.Handle("/licenses/{license_code}/validate", api.Middleware(http.HandlerFunc(l.ValidateLicenseHandler))).Methods("GET")
	apiCreate.Handle("/licenses/{license_code}/claim", api.Middleware(http.HandlerFunc(l.ClaimLicenseHandler))).Methods("POST")
	apiCreate.Handle("/licenses/{license_code}/grace-period", api.Middleware(http.HandlerFunc(l.ActivateGracePeriodHandler))).Methods("POST")
	apiCreate.Handle("/licenses/{license_code}/cancel", api.Middleware(http.HandlerFunc(l.CancelSubscriptionHandler))).Methods("POST")
	apiCreate.Handle("/licenses/{license_code}/accounts", api.Middleware(http.HandlerFunc(l.AccountsByLicenseHandler))).Methods("GET")
	apiCreate.Handle("/licenses/{license_code}/invitations", api.Middleware(http.HandlerFunc(l.MintInvitationHandler))).Methods("POST")

	apiCreate.Handle("/accounts/{account_id}/access", api.Middleware(http.HandlerFunc(access.CheckAccessHandler))).Methods("GET")

	// webhook authenticity is checked inside the handler, not by the auth middleware
	apiCreate.Handle("/payments/events", http.HandlerFunc(payment.PaymentEventHandler)).Methods("POST")
	apiCreate.Handle("/payments/stripe", http.HandlerFunc(payment.StripeWebhookHandler)).Methods("POST")

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"alive": true}`)
}

// Initialize connects the database, configures stripe and builds the router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("license-api has connected to the database")

	// initialize stripe
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		return fmt.Errorf("stripe secret key is not set")
	}
	stripe.Key = stripeKey

	// initialize api router
	a.Router = a.New()
	return nil

}

// DBHelper exposes the database helper for the scheduler wiring in main
func (a *App) DBHelper() databases.DatabaseHelper {
	return a.dbHelper
}
