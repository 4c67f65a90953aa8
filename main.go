package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tompei-viewer/archive"
	"tompei-viewer/constants"
	"tompei-viewer/render"
	"tompei-viewer/session"
	"tompei-viewer/study"
	"tompei-viewer/utils"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger() *zap.Logger {
	env := viper.GetString("workspace.env")
	var logger *zap.Logger
	switch env {
	case "DEVELOPMENT":
		logger, _ = zap.NewDevelopment()
	default:
		logger, _ = zap.NewProduction()
	}
	return logger
}

func setDefaults() {
	viper.SetDefault("webserver.port", "8501")
	viper.SetDefault("archive.url", constants.ArchiveURL)
	viper.SetDefault("archive.cache_dir", "cached_data")
	viper.SetDefault("archive.revalidate", false)
	viper.SetDefault("tcia.uri", constants.TCIAURI)
	viper.SetDefault("tcia.collection", constants.TCIACollection)
	viper.SetDefault("tcia.timeout_ms", 600000)
	viper.SetDefault("tcia.retry_count", 2)
	viper.SetDefault("images.dir", "images")
	viper.SetDefault("session.store", "memory")
	viper.SetDefault("session.ttl", "24h")
	viper.SetDefault("figures.cache_size", constants.DefaultFigureCache)
	viper.SetDefault("render.stroke_width", constants.DefaultStrokeWidth)
	viper.SetDefault("render.fill_alpha", constants.DefaultFillAlpha)
	viper.SetDefault("prefetch.enabled", false)
}

func initConfigs(env string) {
	setDefaults()
	viper.AddConfigPath("conf")
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "__")
	viper.SetEnvKeyReplacer(replacer)
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}
}

func getMapEnvVars() *map[string]string {
	ret := make(map[string]string)
	envsOS := os.Environ()
	for _, envOS := range envsOS {
		items := strings.SplitN(envOS, "=", 2)
		if len(items) > 1 {
			ret[items[0]] = items[1]
		}
	}
	return &ret
}

func newFigureStore(ctx context.Context, logger *zap.Logger) render.FigureStore {
	uri := viper.GetString("minio.uri")
	if uri == "" {
		return nil
	}
	minioClient, err := minio.New(uri, &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_key_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: viper.GetBool("minio.use_ssl"),
	})
	if err != nil {
		logger.Warn("Cannot connect to MinIO, figures are cached in memory only", zap.Error(err))
		return nil
	}
	store := render.NewMinIOFigureStore(minioClient, viper.GetString("minio.bucket_name"), logger)
	if err := store.MakeBucket(ctx); err != nil {
		logger.Warn("Cannot create figure bucket, figures are cached in memory only", zap.Error(err))
		return nil
	}
	return store
}

func main() {

	envVars := getMapEnvVars()
	env := "development"
	if value, found := (*envVars)[constants.ENV]; found {
		env = value
	}
	initConfigs(env)

	logger := newLogger()
	defer logger.Sync()
	utils.SetLogger(logger)
	utils.LogInfo("Viewer is running in [%s] mode", env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	route := gin.Default()
	route.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"POST", "GET"},
		AllowHeaders:     []string{"Access-Control-Allow-Headers", "Origin", "Accept", "X-Requested-With", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	tciaTimeout := time.Duration(viper.GetInt("tcia.timeout_ms")) * time.Millisecond
	archiveCache := archive.NewCache(
		viper.GetString("archive.url"),
		viper.GetString("archive.cache_dir"),
		tciaTimeout,
		viper.GetInt("tcia.retry_count"),
		viper.GetBool("archive.revalidate"),
		logger)
	tciaClient := study.NewTCIAClient(viper.GetString("tcia.uri"), tciaTimeout, viper.GetInt("tcia.retry_count"), logger)
	dicomReader := study.NewDICOMReader(logger)
	renderer := render.NewRenderer(viper.GetFloat64("render.stroke_width"), viper.GetFloat64("render.fill_alpha"))

	figureCache, err := render.NewFigureCache(viper.GetInt("figures.cache_size"), newFigureStore(ctx, logger), logger)
	if err != nil {
		utils.LogFatal(err)
	}

	var (
		sessionStore session.Store
		locker       session.Locker
	)
	sessionTTL := viper.GetDuration("session.ttl")
	switch viper.GetString("session.store") {
	case "redis":
		clientRedis := redis.NewClient(&redis.Options{
			Network:    "tcp",
			Addr:       viper.GetString("redis.uri"),
			MaxRetries: 3,
		})
		defer clientRedis.Close()
		if err := clientRedis.Ping(ctx).Err(); err != nil {
			utils.LogFatal(fmt.Errorf("cannot connect to redis: %w", err))
		}
		sessionStore = session.NewRedisStore(clientRedis, sessionTTL)
		locker = session.NewRedisLocker(redislock.New(clientRedis), time.Minute, logger)
	default:
		sessionStore = session.NewMemoryStore(sessionTTL)
		locker = session.NewLocalLocker()
	}

	orchestrator := session.NewOrchestrator(archiveCache, tciaClient, dicomReader, renderer, figureCache, locker,
		session.OrchestratorConfig{
			Collection: viper.GetString("tcia.collection"),
			ImagesDir:  viper.GetString("images.dir"),
			BasePath:   "/viewer",
		}, logger)

	if viper.GetBool("prefetch.enabled") {
		prefetcher := session.NewPrefetcher(orchestrator.Prefetch, logger)
		orchestrator.SetPrefetcher(prefetcher)
		go prefetcher.Run(ctx)
	}

	viewerAPI := session.NewViewerAPI(orchestrator, sessionStore, int(sessionTTL.Seconds()), logger)
	viewerAPI.InitRoute(route, "viewer")
	viewerAPI.InitAPIRoute(route, "api/patients")

	route.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/viewer")
	})
	route.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("webserver.port"),
		Handler: route,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.LogFatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	utils.LogInfo("Shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	utils.LogError(srv.Shutdown(shutdownCtx))
}
