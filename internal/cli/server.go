package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-match-service/internal/config"
	"trivia-match-service/internal/domain"
	"trivia-match-service/internal/game"
	"trivia-match-service/internal/infra/memory"
	pgstore "trivia-match-service/internal/infra/postgres"
	redisstore "trivia-match-service/internal/infra/redis"
	transport "trivia-match-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia match server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	retention := config.Duration(cfg.Game.Retention, 24*time.Hour)

	var quizRepo game.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var matches game.MatchStore
	if redisClient != nil {
		matches = redisstore.NewMatchStore(redisClient, retention)
	} else {
		matches = memory.NewMatchStore()
	}

	var archiver game.Archiver
	var archive *pgstore.MatchArchive
	if pool != nil {
		archive = pgstore.NewMatchArchive(pool)
		archiver = archive
	}

	rules := game.DefaultRules()
	if cfg.Game.MinPlayers > 0 {
		rules.MinPlayers = cfg.Game.MinPlayers
	}
	rules.AutoStartDelay = config.Duration(cfg.Game.AutoStartDelay, rules.AutoStartDelay)
	rules.SettleDelay = config.Duration(cfg.Game.SettleDelay, rules.SettleDelay)

	hub := transport.NewHub()
	service := game.NewGameService(matches, quizRepo, hub, archiver, rules)
	wsHandler := transport.NewWSHandler(service, hub)
	api := transport.NewAPI(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	api.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, service, archive, retention)

	go func() {
		log.Printf("starting trivia match service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runJanitor reaps matches past the retention window: live actors via
// the service, archived rows via the database cleanup.
func runJanitor(ctx context.Context, service *game.GameService, archive *pgstore.MatchArchive, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := service.CleanupExpired(retention, time.Hour); removed > 0 {
				log.Printf("janitor: removed %d stale matches", removed)
			}
			if archive != nil {
				cleanupCtx, cancel := context.WithTimeout(ctx, time.Minute)
				if n, err := archive.CleanupBefore(cleanupCtx, time.Now().Add(-retention)); err != nil {
					log.Printf("janitor: archive cleanup: %v", err)
				} else if n > 0 {
					log.Printf("janitor: deleted %d archived matches", n)
				}
				cancel()
			}
		}
	}
}

// sampleQuizzes seeds the static loader for local runs without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:                "quiz-1",
			Title:             "Warm-up",
			TimePerQuestionMs: 30000,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Text:   "The capital of Australia is Sydney.",
					Type:   domain.TrueFalse,
					Order:  1,
					Points: 10,
					Options: []domain.Option{
						{ID: "q1o1", Text: "True", Correct: false, Order: 1},
						{ID: "q1o2", Text: "False", Correct: true, Order: 2},
					},
				},
				{
					ID:     "q2",
					Text:   "Which planet has the most moons?",
					Type:   domain.MultipleChoice,
					Order:  2,
					Points: 10,
					Options: []domain.Option{
						{ID: "q2o1", Text: "Earth", Correct: false, Order: 1},
						{ID: "q2o2", Text: "Saturn", Correct: true, Order: 2},
						{ID: "q2o3", Text: "Mars", Correct: false, Order: 3},
						{ID: "q2o4", Text: "Venus", Correct: false, Order: 4},
					},
				},
			},
		},
	}
}
