// Package main is the entry point of the WhatsApp notification service.
// It initializes the Kratos application with the HTTP and cron servers.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/server"
	zapLogger "github.com/arithgrey/service-whatsapp/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "service-whatsapp"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string
	// flagseed triggers schema bootstrap plus default template seeding.
	flagseed bool

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.BoolVar(&flagseed, "seed-templates", false, "apply schema and seed default templates, then exit")
}

func newApp(logger log.Logger, hs *http.Server, cs *server.CronServer) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			cs,
		),
	)
}

func main() {
	flag.Parse()

	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	logger := zapLogger.NewKratosAdapter(zapLog)
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	helper := log.NewHelper(logger)

	if flagseed {
		runSeed(bc, logger, helper)
		return
	}

	helper.Infow(
		"msg", "WhatsApp notification service starting",
		"log.level", bc.Log.Level,
		"log.env", bc.Log.Env,
		"breaker.failure_threshold", bc.Breaker.FailureThreshold,
		"breaker.recovery_timeout", bc.Breaker.RecoveryTimeout.AsDuration().String(),
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.WhatsApp, bc.Breaker, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}

func runSeed(bc *conf.Bootstrap, logger log.Logger, helper *log.Helper) {
	migrator, cleanup, err := wireMigrator(bc.Data, logger)
	if err != nil {
		helper.Fatalf("failed to initialize migrator: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	created, err := migrator.Run(ctx)
	if err != nil {
		helper.Fatalf("template seeding failed: %v", err)
	}
	helper.Infow("msg", "seeding finished", "templates_created", created)
}
