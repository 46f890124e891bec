package main

import (
	"flag"
	"log"
	"net/http"

	"bucketset/config"
	"bucketset/db"
	"bucketset/store"
	"bucketset/web"

	"github.com/gookit/slog"
	"github.com/joho/godotenv"
)

var (
	configFile = flag.String("config-file", "bucketset.toml", "Config file for the set store")
	httpAddr   = flag.String("http-addr", "", "HTTP host and port, overrides the config")
	env        = flag.String("env", "", "The path to an optional env file")
)

func parseFlags() {
	flag.Parse()

	if *configFile == "" {
		log.Fatalf("Must provide config-file")
	}
}

func main() {
	parseFlags()

	if *env != "" {
		if err := godotenv.Load(*env); err != nil {
			log.Fatalf("Error loading env file %q: %v", *env, err)
		}
	}

	cfg, err := config.ParseFile(*configFile)
	if err != nil {
		log.Fatalf("Error parsing config(%q): %v", *configFile, err)
	}

	slog.SetLogLevel(logLevel(cfg.LogLevel))

	docs, closeFunc, err := db.Open(cfg.Backend, cfg.DBPath, cfg.DSN, cfg.Collection())
	if err != nil {
		log.Fatalf("Error opening %s backend: %v", cfg.Backend, err)
	}
	defer closeFunc()

	addr := cfg.HTTPAddr
	if *httpAddr != "" {
		addr = *httpAddr
	}

	startHttpServer(docs, addr)
}

func startHttpServer(docs db.Store, addr string) {
	srv := web.NewServer(store.New(docs))

	http.HandleFunc("/get", srv.GetHandler)
	http.HandleFunc("/union", srv.UnionHandler)
	http.HandleFunc("/batch", srv.BatchHandler)
	http.HandleFunc("/clean", srv.CleanHandler)

	slog.Infof("listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.DebugLevel
	case "warn":
		return slog.WarnLevel
	case "error":
		return slog.ErrorLevel
	default:
		return slog.InfoLevel
	}
}
