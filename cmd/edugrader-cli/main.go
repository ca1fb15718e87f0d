package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alixandros/edugrader-client/internal/api"
	"github.com/Alixandros/edugrader-client/internal/config"
	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/session"
	"github.com/Alixandros/edugrader-client/internal/tokenstore"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const usage = `usage: edugrader-cli [flags] <command>

commands:
  login    -email <email> -password <password>
  logout
  whoami
  courses
  grades   -course <course_id>
`

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		email      string
		password   string
		courseID   string
	)
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&email, "email", "", "login email")
	flag.StringVar(&password, "password", "", "login password")
	flag.StringVar(&courseID, "course", "", "course id")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command := flag.Arg(0)

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tokensPath := cfg.Tokens.Path
	if tokensPath == "" {
		var err error
		tokensPath, err = tokenstore.DefaultPath()
		if err != nil {
			log.Error("token_path_resolve_failed", slog.String("err", err.Error()))
			return 1
		}
	}

	store, err := tokenstore.NewFileStore(tokensPath)
	if err != nil {
		log.Error("token_store_init_failed", slog.String("err", err.Error()))
		return 1
	}

	mgr, err := session.New(session.Options{
		BaseURL: cfg.API.BaseURL,
		Store:   store,
		Notifier: session.NotifierFunc(func(reason session.EndReason) {
			if reason != session.EndedByLogout {
				fmt.Fprintln(os.Stderr, "session ended ("+reason.String()+"), run `edugrader-cli login` again")
			}
		}),
		RequestTimeout: cfg.Timeouts.Request,
		LoginTimeout:   cfg.Timeouts.Login,
		LogoutTimeout:  cfg.Timeouts.Logout,
	})
	if err != nil {
		log.Error("session_init_failed", slog.String("err", err.Error()))
		return 1
	}

	// Восстановление сессии из файла токенов (кроме явного логина).
	if command != "login" {
		if err := mgr.Restore(ctx); err != nil {
			log.Error("session_restore_failed", slog.String("err", err.Error()))
			return 1
		}
	}

	switch command {
	case "login":
		return cmdLogin(ctx, mgr, email, password)
	case "logout":
		mgr.Logout(ctx)
		fmt.Println("logged out")
		return 0
	case "whoami":
		return cmdWhoami(mgr)
	case "courses":
		return cmdCourses(ctx, mgr)
	case "grades":
		return cmdGrades(ctx, mgr, courseID)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func cmdLogin(ctx context.Context, mgr *session.Manager, email, password string) int {
	if email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "login requires -email and -password")
		return 2
	}

	profile, err := mgr.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			fmt.Fprintln(os.Stderr, "incorrect email or password")
			return 1
		}

		slog.Error("login_failed", slog.String("err", err.Error()))
		return 1
	}

	fmt.Printf("logged in as %s (%s)\n", profile.FullName(), profile.Role)
	return 0
}

func cmdWhoami(mgr *session.Manager) int {
	profile, ok := mgr.CurrentUser()
	if !ok {
		fmt.Fprintln(os.Stderr, "not logged in")
		return 1
	}

	fmt.Printf("%s <%s> role=%s", profile.FullName(), profile.Email, profile.Role)
	if profile.Group != "" {
		fmt.Printf(" group=%s", profile.Group)
	}
	fmt.Println()

	return 0
}

func cmdCourses(ctx context.Context, mgr *session.Manager) int {
	client := api.New(mgr)

	courses, err := client.Courses(ctx)
	if err != nil {
		slog.Error("courses_failed", slog.String("err", err.Error()))
		return 1
	}

	for _, c := range courses {
		fmt.Printf("%s\t%s\t%s\n", c.ID, c.Code, c.NameRu)
	}

	return 0
}

func cmdGrades(ctx context.Context, mgr *session.Manager, courseID string) int {
	if courseID == "" {
		fmt.Fprintln(os.Stderr, "grades requires -course")
		return 2
	}

	// Студент смотрит свои оценки; преподавателю нужен явный student id —
	// это write/чужая зона, в CLI не поддерживается.
	if !mgr.HasRole(models.RoleStudent, models.RoleAdmin) {
		fmt.Fprintln(os.Stderr, "grades is available to students")
		return 1
	}

	profile, ok := mgr.CurrentUser()
	if !ok {
		fmt.Fprintln(os.Stderr, "not logged in")
		return 1
	}

	client := api.New(mgr)

	grades, err := client.StudentGrades(ctx, profile.ID.String(), courseID)
	if err != nil {
		slog.Error("grades_failed", slog.String("err", err.Error()))
		return 1
	}

	for _, g := range grades {
		fmt.Printf("%s\t%.1f/%.1f\t%s\n", g.AssignmentTitle, g.Score, g.MaxScore, g.Comments)
	}

	return 0
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
