// Package main is the entry point for the c3a authentication authority.
// It parses configuration, opens the embedded KV store, wires the apps and
// users packages together, and starts the HTTP server.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"

	"github.com/verbalautomation/c3a/api"
	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/internal"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/notifications"
	"github.com/verbalautomation/c3a/notifications/smtp"
	"github.com/verbalautomation/c3a/users"
)

// minAdminKeyLength is the shortest admin key the authority will start
// with; see spec's pepper-derivation note below.
const minAdminKeyLength = 128

// pepperBegin/pepperEnd select the 25-byte slice (bytes 24..=48 inclusive)
// of the admin key used as the Argon2id pepper. Coupling the pepper to the
// admin key is intentional: rotating the admin key invalidates every
// stored email-code hash along with it.
const (
	pepperBegin = 24
	pepperEnd   = 49
)

func main() {
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.StringP("dataDir", "d", "./c3a-data", "directory for the embedded KV store")
	flag.Int("workers", 8, "size of the blocking-operation worker pool")
	flag.Int("smtpPort", 587, "SMTP port, used when SMTP_ADDR has none")
	flag.String("emailFromAddress", "", "email service from address")
	flag.String("emailFromName", "C3A", "email service from name")
	flag.Parse()

	viper.SetEnvPrefix("C3A")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()

	log.Init("debug", "stdout", os.Stderr)

	host := viper.GetString("host")
	port := viper.GetInt("port")
	dataDir := viper.GetString("dataDir")
	workers := viper.GetInt("workers")
	smtpPort := viper.GetInt("smtpPort")
	emailFromAddress := viper.GetString("emailFromAddress")
	emailFromName := viper.GetString("emailFromName")

	// The admin key is read directly from the process environment, never
	// through viper/pflag, so it can never be set from a config file.
	adminKey := os.Getenv("C3A_PRIVATE_ADM_KEY")
	if len(adminKey) < minAdminKeyLength {
		log.Fatalf("C3A_PRIVATE_ADM_KEY must be at least %d characters", minAdminKeyLength)
	}
	pepper := []byte(adminKey)[pepperBegin:pepperEnd]

	db, err := kv.Open(dataDir)
	if err != nil {
		log.Fatalf("could not open the KV store: %v", err)
	}
	defer func() { _ = db.Close() }()

	var notifier notifications.NotificationService = &smtp.Email{}
	smtpAddr := os.Getenv("SMTP_ADDR")
	smtpUsername := os.Getenv("SMTP_USERNAME")
	smtpPassword := os.Getenv("SMTP_PASSWORD")
	if smtpAddr != "" {
		server, addrPort, err := net.SplitHostPort(smtpAddr)
		if err != nil {
			server, addrPort = smtpAddr, ""
		}
		cfg := &smtp.Config{
			FromName:     emailFromName,
			FromAddress:  emailFromAddress,
			SMTPUsername: smtpUsername,
			SMTPPassword: smtpPassword,
			SMTPServer:   server,
			SMTPPort:     smtpPort,
		}
		if addrPort != "" {
			if p, err := net.LookupPort("tcp", addrPort); err == nil {
				cfg.SMTPPort = p
			}
		}
		if err := notifier.New(cfg); err != nil {
			log.Fatalf("could not initialize the SMTP notification service: %v", err)
		}
	}

	pool := internal.NewWorkerPool(workers)
	appsRegistry := apps.New(db)
	usersEngine := users.NewEngine(db, notifier, pepper)

	a, err := api.New(&api.Config{
		Host:     host,
		Port:     port,
		KV:       db,
		Apps:     appsRegistry,
		Users:    usersEngine,
		Notifier: notifier,
		AdminKey: adminKey,
		Pool:     pool,
	})
	if err != nil {
		log.Fatalf("could not build the API: %v", err)
	}
	a.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Infof("shutting down")
	pool.Wait()
}
