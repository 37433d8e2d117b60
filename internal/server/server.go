package server

import (
	"path/filepath"
	"strings"

	"github.com/iwongu/pottery-app/internal/activity"
	"github.com/iwongu/pottery-app/internal/auth"
	"github.com/iwongu/pottery-app/internal/config"
	"github.com/iwongu/pottery-app/internal/db"
	"github.com/iwongu/pottery-app/internal/media"
	"github.com/iwongu/pottery-app/internal/posts"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       db.Querier
	Redis    *redis.Client
	Activity *activity.Hub
	Media    *media.Store

	fs afero.Fs
}

type Option func(*Server)

// WithFs replaces the OS filesystem used for uploads.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

// WithDB overrides the pool as the query target.
func WithDB(q db.Querier) Option {
	return func(s *Server) { s.DB = q }
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, opts ...Option) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	s := &Server{
		App:   app,
		Cfg:   cfg,
		Redis: redisClient,
		fs:    afero.NewOsFs(),
	}
	if pg != nil {
		s.DB = pg
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Media = media.NewStore(s.fs, cfg.UploadsDir)
	s.Activity = activity.NewHub(redisClient)

	registerRoutes(s)
	return s
}

// Close releases what the server owns; the pool and Redis client belong to
// the caller.
func (s *Server) Close() error {
	return s.Activity.Close()
}

func corsConfig(origins string) cors.Config {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	uploads := afero.NewHttpFs(s.fs)
	for _, ns := range []media.Namespace{media.PostImages, media.ProfilePhotos} {
		s.App.Use("/uploads/"+string(ns), filesystem.New(filesystem.Config{
			Root: uploads.Dir(filepath.Join(s.Cfg.UploadsDir, string(ns))),
		}))
	}

	usersSvc := users.NewService(s.DB, s.Media)
	postsSvc := posts.NewService(s.DB, s.Media, s.Activity).WithHomepageMinLikes(s.Cfg.HomepageMinLikes)
	authSvc := auth.NewService(s.Cfg.JWTSecret, s.Cfg.AccessTokenTTL(), s.DB)
	jwtMiddleware := auth.JWTMiddleware(authSvc, usersSvc)

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)

	usersGroup := s.App.Group("/users")
	users.RegisterRoutes(usersGroup, usersSvc, jwtMiddleware)
	posts.RegisterUserRoutes(usersGroup, postsSvc)

	posts.RegisterRoutes(s.App.Group("/posts"), postsSvc, jwtMiddleware)
	activity.RegisterRoutes(s.App.Group("/stream"), s.Activity)
}
