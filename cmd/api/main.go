package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stackpad.org/internal/account"
	"stackpad.org/internal/auth"
	"stackpad.org/internal/cache"
	"stackpad.org/internal/config"
	"stackpad.org/internal/file"
	"stackpad.org/internal/httpapi"
	"stackpad.org/internal/i18n"
	"stackpad.org/internal/item"
	"stackpad.org/internal/mail"
	"stackpad.org/internal/obs"
	"stackpad.org/internal/store/pg"
	"stackpad.org/internal/tasks"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("STACKPAD_PG_DSN is required")
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret, "stackpad",
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithResetTTL(cfg.ResetTokenTTL),
	)
	if err != nil {
		log.Fatalf("auth issuer: %v", err)
	}

	// Sessions and the response cache move to redis when configured;
	// a single instance runs fine on process memory.
	var (
		sessions auth.SessionStore
		rcache   *cache.Cache
	)
	if cfg.RedisAddr != "" {
		rcache = cache.New(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.CachePrefix,
			TTL:      cfg.CacheTTL,
		})
		sessions = cache.NewSessionStore(rcache, cfg.SessionTTL)
	} else {
		sessions = auth.NewMemorySessionStore(cfg.SessionTTL)
	}

	resolver, err := auth.NewResolver(issuer, store, sessions)
	if err != nil {
		log.Fatalf("auth resolver: %v", err)
	}

	queue := tasks.New(4, 256)

	var mailer mail.Mailer = mail.LogMailer{}
	if cfg.EmailsEnabled() {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailsFrom)
	}
	templates := mail.NewTemplates(cfg.ProjectName, cfg.FrontendHost, cfg.ResetTokenTTL)
	notifier := mail.NewNotifier(mailer, templates, queue)

	accounts, err := account.NewService(store, issuer, account.WithNotifier(notifier))
	if err != nil {
		log.Fatalf("account service: %v", err)
	}
	items, err := item.NewService(store)
	if err != nil {
		log.Fatalf("item service: %v", err)
	}

	var blobs file.BlobStore
	if cfg.S3Bucket != "" {
		blobs, err = file.NewS3BlobStore(context.Background(), file.S3Options{
			Bucket:      cfg.S3Bucket,
			Region:      cfg.S3Region,
			Endpoint:    cfg.S3Endpoint,
			AccessKeyID: cfg.S3AccessKey,
			SecretKey:   cfg.S3SecretKey,
		})
	} else {
		blobs, err = file.NewLocalBlobStore(cfg.UploadDir)
	}
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}
	files := file.NewService(store, blobs, cfg.MaxUploadSize, cfg.AllowedExtensions, cfg.AllowedMIMETypes)

	translator, err := i18n.New(cfg.DefaultLocale)
	if err != nil {
		log.Fatalf("i18n: %v", err)
	}

	if cfg.FirstSuperuser != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := accounts.EnsureFirstSuperuser(ctx, cfg.FirstSuperuser, cfg.FirstSuperuserPassword); err != nil {
			log.Fatalf("bootstrap superuser: %v", err)
		}
		cancel()
	}

	api := httpapi.New(httpapi.Options{
		Config:     cfg,
		Accounts:   accounts,
		Items:      items,
		Files:      files,
		Resolver:   resolver,
		Issuer:     issuer,
		Translator: translator,
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Cache:      rcache,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting stackpad-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = queue.Drain(ctx)
	_ = store.Close()
	if rcache != nil {
		_ = rcache.Close()
	}
	log.Println("Stopped")
}
