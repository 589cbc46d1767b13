package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	echoapi "github.com/institutohope/platform/apps/api/echo"
	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/material"
	"github.com/institutohope/platform/core/student"
	aisvc "github.com/institutohope/platform/services/ai"
	emailsvc "github.com/institutohope/platform/services/email"
	logsvc "github.com/institutohope/platform/services/logger"
	"github.com/institutohope/platform/storage/local"
	"github.com/institutohope/platform/storage/remote"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	logger := newLogger(conf, "API")
	dbLogger := newLogger(conf, "DB")

	// local store backs the roster in local mode and device settings in both
	kv, err := local.NewStore(conf.LocalStorePath, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening local store: %v", err), err)
	}
	defer kv.Close()

	// the backend is picked here, once; it never changes for the life of
	// the process
	mode := student.ModeLocal
	var remoteStore student.RemoteStore
	if conf.RemoteConfigured() {
		store, err := remote.NewStore(ctx, conf.DatabaseDSN, dbLogger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to document store: %v", err), err)
		}
		defer store.Close()
		if err = remote.Migrate(ctx, store.Pool()); err != nil {
			logger.Fatal(fmt.Sprintf("migrating document store: %v", err), err)
		}
		remoteStore = store
		mode = student.ModeRemote
	}
	logger.Info("backend selected: " + mode.String())

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	aiSvc, err := aisvc.NewService(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up AI service: %v", err), err)
	}

	ctrl := student.NewController(mode, kv, remoteStore, mailSvc, conf, logger, uuid.NewString)
	defer ctrl.Close()

	library := material.NewLibrary(kv, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("backend").Set(mode.String())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Ctrl:       ctrl,
			Library:    library,
			AISvc:      aiSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newLogger(conf *core.Config, prefix string) core.Logger {
	if conf.Debug {
		logger, err := logsvc.NewZapLogger(conf)
		if err != nil {
			log.Fatalf("setting up logger: %v", err)
		}
		return logger
	}
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(true)
	return logger
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
