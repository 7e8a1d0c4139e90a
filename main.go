package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/commune-app/callengine/pkg/call"
	"github.com/commune-app/callengine/pkg/http/rest"
	"github.com/commune-app/callengine/pkg/identity"
	"github.com/commune-app/callengine/pkg/level"
	"github.com/commune-app/callengine/pkg/media"
	"github.com/commune-app/callengine/pkg/record"
	"github.com/commune-app/callengine/pkg/rtc"
	"github.com/commune-app/callengine/pkg/store"
	"github.com/commune-app/callengine/pkg/upload"
)

func getEnvOrFail(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("%s not set", key)
	}
	return val
}

func main() {
	// Get env variables
	port := getEnvOrFail("APP_PORT")
	projectID := getEnvOrFail("GOOGLE_PROJECT_ID")
	jwtSecret := getEnvOrFail("JWT_SECRET")
	logLevel := os.Getenv("LOG_LEVEL")
	stunServers := os.Getenv("STUN_SERVERS")

	// Get log verbosity
	var verbosity log.Lvl
	switch strings.ToLower(logLevel) {
	case "debug":
		verbosity = log.DEBUG
	case "info":
		verbosity = log.INFO
	case "warn":
		verbosity = log.WARN
	case "error":
		fallthrough
	default:
		verbosity = log.ERROR
	}
	log.SetLevel(verbosity)
	log.SetHeader("(${short_file}:${line}) ${time_rfc3339} ${level}: ")

	// Separate STUN servers by comma
	stun := rtc.DefaultSTUNServers
	if stunServers != "" {
		stun = strings.Split(stunServers, ",")
	}

	ctx := context.Background()

	// Check that ffmpeg is installed
	encoder, err := media.NewFFmpegEncoder()
	if err != nil {
		log.Fatal(err)
	}

	// Create S3 uploader only if the environment variables are not
	// empty, otherwise fall back to MinIO
	s3Region := os.Getenv("S3_REGION")
	s3Bucket := os.Getenv("S3_BUCKET")
	var uploader upload.Uploader
	if s3Region != "" && s3Bucket != "" {
		uploader, err = upload.NewS3Uploader(ctx, upload.S3Config{
			Region:    s3Region,
			Bucket:    s3Bucket,
			Directory: os.Getenv("S3_DIRECTORY"),
		})
	} else {
		uploader, err = upload.NewMinioUploader(upload.MinioConfig{
			Endpoint:  getEnvOrFail("MINIO_ENDPOINT"),
			AccessKey: getEnvOrFail("MINIO_ACCESS_KEY"),
			SecretKey: getEnvOrFail("MINIO_SECRET_KEY"),
			Bucket:    getEnvOrFail("MINIO_BUCKET"),
			Secure:    os.Getenv("MINIO_SECURE") == "true",
		})
	}
	if err != nil {
		log.Fatal(err)
	}

	// Initialise document store
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		log.Fatal(err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	callStore := store.NewFirestoreStore(client)

	// Initialise call controller. Each user session owns its own peer
	// connection, analyser and recorder.
	controller := rest.NewCallController(func(scope string, self identity.Identity) call.Service {
		return call.New(scope, self, call.Deps{
			Store:    callStore,
			Uploader: uploader,
			NewConnection: func() call.Connection {
				return rtc.NewManager(rtc.Config{STUNServers: stun}, encoder)
			},
			NewAnalyzer: func() call.Analyzer { return level.NewEngine() },
			NewRecorder: func() record.Pipeline { return record.NewPipeline(encoder) },
			OnLevel: func(userID string, lvl float64) {
				log.Debugf("speaking level | user: %s, level: %.2f", userID, lvl)
			},
		})
	})
	defer controller.Shutdown()

	// Initialise server
	e := echo.New()

	// Attach middlewares
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "(${host}) ${time_rfc3339} ${level}: ${method} ${uri} ${status} ${error}\n",
	}))
	auth := rest.Auth(identity.NewVerifier([]byte(jwtSecret)))

	// Attach handlers
	e.GET("/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// Attach call handlers
	e.POST("/calls", controller.StartCall, auth)
	e.POST("/calls/:id/join", controller.JoinCall, auth)
	e.POST("/calls/leave", controller.LeaveCall, auth)
	e.POST("/calls/:id/messages", controller.SendMessage, auth)
	e.POST("/calls/:id/files", controller.UploadFile, auth)
	e.GET("/calls/:id/messages", controller.ListMessages, auth)

	// Start server
	e.Logger.Fatal(e.Start(":" + port))
}
