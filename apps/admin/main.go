package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/student"
	logsvc "github.com/institutohope/platform/services/logger"
	"github.com/institutohope/platform/storage/local"
	"github.com/institutohope/platform/storage/remote"
)

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	ctx := context.Background()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	kv, err := local.NewStore(conf.LocalStorePath, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening local store: %v", err), err)
	}
	defer kv.Close()

	mode := student.ModeLocal
	var remoteStore *remote.Store
	var remoteIface student.RemoteStore
	if conf.RemoteConfigured() {
		remoteStore, err = remote.NewStore(ctx, conf.DatabaseDSN, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to document store: %v", err), err)
		}
		defer remoteStore.Close()
		remoteIface = remoteStore
		mode = student.ModeRemote
	}

	ctrl := student.NewController(mode, kv, remoteIface, nil, conf, logger, uuid.NewString)
	defer ctrl.Close()

	cli := commandLine{
		conf: conf,
		ctrl: ctrl,
	}
	if remoteStore != nil {
		cli.pool = remoteStore.Pool()
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
