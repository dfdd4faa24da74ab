package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/database"
	"github.com/rurallearn/rurallearn-backend/internal/logger"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
	"github.com/rurallearn/rurallearn-backend/internal/service"
	"github.com/rurallearn/rurallearn-backend/internal/validator"
)

// seed-test loads one or more test definitions from JSON files and creates
// them under a teacher account. Each file holds a CreateTestRequest body.
func main() {
	var author string
	flag.StringVar(&author, "author", "", "Email of the teacher who owns the seeded tests")
	flag.Parse()

	if author == "" || flag.NArg() == 0 {
		fmt.Println("Usage: seed-test -author teacher@example.com test1.json [test2.json ...]")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)
	tests := repository.NewTestRepository(pool)
	testService := service.NewTestService(tests, service.NewQuestionBank(tests, nil, cfg.AnswerKeyCacheTTL, log), log)

	teacher, err := users.GetByEmail(ctx, author)
	if err != nil {
		log.Fatal().Err(err).Str("email", author).Msg("Author not found")
	}
	if teacher.Role != model.RoleTeacher {
		log.Fatal().Str("email", author).Str("role", string(teacher.Role)).Msg("Author must be a teacher")
	}

	fmt.Printf("=== Seeding %d test(s) for %s ===\n", flag.NArg(), teacher.Email)

	created := 0
	for _, path := range flag.Args() {
		req, err := loadRequest(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Skipping test definition")
			continue
		}

		t, err := testService.Create(ctx, teacher.ID, req)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to create test")
			continue
		}
		created++
		fmt.Printf("Created %s %q (%d questions) with ID: %s\n", t.Kind, t.Title, len(req.Questions), t.ID)
	}

	fmt.Printf("\nDone. %d/%d test(s) created.\n", created, flag.NArg())
}

func loadRequest(path string) (*model.CreateTestRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var req model.CreateTestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &req, nil
}
