// sealedlotd hosts the sealed-bid lot auction engine behind an HTTP API.
//
// The engine itself is deterministic and time-injected; this daemon supplies
// the wall clock, the authority identity, the persistent event log and the
// COSE-pinned proof verifiers, all from a YAML config file.
//
// Usage:
//
//	sealedlotd -config sealedlotd.yaml
package main

import (
	"flag"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"github.com/agrilot/sealedlot/core"
	"github.com/agrilot/sealedlot/eventlog"
	"github.com/agrilot/sealedlot/httpserver"
	"github.com/agrilot/sealedlot/verifier"
)

func main() {
	configPath := flag.String("config", "sealedlotd.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Init("sealedlotd", false, false, os.Stdout)
		logger.Fatalf("Failed to load config: %v", err)
	}

	defer logger.Init("sealedlotd", cfg.Verbose, false, os.Stdout).Close()

	authority := core.Identity(cfg.Authority)

	var sink core.EventSink
	if cfg.EventDB != "" {
		db, err := eventlog.Open(cfg.EventDB)
		if err != nil {
			logger.Fatalf("Failed to open event log %s: %v", cfg.EventDB, err)
		}
		defer db.Close()
		sink = db
		logger.Infof("Event log: sqlite at %s", cfg.EventDB)
	} else {
		sink = core.NewMemorySink()
		logger.Warningf("Event log: in-memory (events lost on restart)")
	}

	engine := core.NewEngine(authority, core.NewLotStore(), sink)

	if err := configureVerifier(engine, authority, verifier.CircuitSelection, cfg.SelectionCert); err != nil {
		logger.Fatalf("Selection verifier: %v", err)
	}
	if err := configureVerifier(engine, authority, verifier.CircuitPayment, cfg.PaymentCert); err != nil {
		logger.Fatalf("Payment verifier: %v", err)
	}

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	httpserver.NewHandler(engine).RegisterRoutes(router)

	logger.Infof("sealedlotd listening on %s", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatalf("HTTP server failed: %v", err)
	}
}

// configureVerifier pins a circuit's gateway to the certificate at certPath.
// An empty path leaves the circuit unconfigured.
func configureVerifier(engine *core.Engine, authority core.Identity, circuit verifier.Circuit, certPath string) error {
	if certPath == "" {
		logger.Warningf("No certificate for %s circuit; proof operations on it will fail until configured", circuit)
		return nil
	}
	cert, err := verifier.LoadCertificate(certPath)
	if err != nil {
		return err
	}
	gw, err := verifier.NewCOSEVerifier(circuit, cert)
	if err != nil {
		return err
	}
	if err := engine.SetVerifier(authority, circuit, gw); err != nil {
		return err
	}
	logger.Infof("Configured %s verifier from %s", circuit, certPath)
	return nil
}
