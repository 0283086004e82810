package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"evcharge/internal/config"
	"evcharge/internal/db"
	"evcharge/internal/logger"
	"evcharge/internal/model"
	"evcharge/internal/repository"
)

// SeedChargerData is one charger in the import document.
type SeedChargerData struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Status        string  `json:"status"`
	PowerOutput   string  `json:"powerOutput"`
	ConnectorType string  `json:"connectorType"`
}

// Roles can only be changed through direct store access; this command is
// that access. It creates or promotes the admin named by SEED_ADMIN_EMAIL
// and optionally imports chargers owned by that admin.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found; relying on existing environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	lg := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel})
	lg.Info().Msg("starting seed script")

	email := strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" {
		lg.Fatal().Msg("SEED_ADMIN_EMAIL is required")
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.Migrate(gormDB, false, lg); err != nil {
		lg.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	userRepo := repository.NewUserRepository(gormDB)
	admin, created, err := ensureAdmin(ctx, userRepo, email, password, cfg.BcryptCost)
	if err != nil {
		lg.Fatal().Err(err).Str("email", email).Msg("failed to seed admin")
	}
	lg.Info().Str("email", admin.Email).Str("id", admin.ID.String()).Bool("created", created).Msg("admin ready")

	source := strings.TrimSpace(os.Getenv("SEED_CHARGERS_URL"))
	if source == "" {
		lg.Info().Msg("SEED_CHARGERS_URL not set; skipping charger import")
		return
	}

	lg.Info().Str("source", source).Msg("fetching chargers")
	items, err := fetchChargers(ctx, source)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to fetch chargers")
	}

	chargers := toChargers(items, admin.ID, lg)
	seeded, updated, err := seedChargers(ctx, repository.NewChargerRepository(gormDB), chargers)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to seed chargers")
	}

	lg.Info().
		Int("created", seeded).
		Int("updated", updated).
		Int("skipped", len(items)-len(chargers)).
		Msg("seed completed")
}

// ensureAdmin promotes an existing user or creates a new admin. The
// password is only used when the user does not exist yet.
func ensureAdmin(ctx context.Context, repo repository.UserRepository, email, password string, cost int) (*model.User, bool, error) {
	existing, err := repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("look up user: %w", err)
	}

	if existing != nil {
		if existing.Role != model.RoleAdmin {
			if err := repo.UpdateRole(ctx, existing.ID, model.RoleAdmin); err != nil {
				return nil, false, fmt.Errorf("promote user: %w", err)
			}
			existing.Role = model.RoleAdmin
		}
		return existing, false, nil
	}

	if password == "" {
		return nil, false, errors.New("SEED_ADMIN_PASSWORD is required to create a new admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}

	admin := &model.User{Email: email, PasswordHash: string(hash), Role: model.RoleAdmin}
	if err := repo.Create(ctx, admin); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return admin, true, nil
}

// fetchChargers reads the import document from an http(s) URL or a local file.
func fetchChargers(ctx context.Context, source string) ([]SeedChargerData, error) {
	var body []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch from API: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API returned status code: %d", resp.StatusCode)
		}
		if body, err = io.ReadAll(resp.Body); err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
	} else {
		var err error
		if body, err = os.ReadFile(source); err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
	}

	var items []SeedChargerData
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return items, nil
}

// toChargers converts import rows, skipping the ones that fail validation.
func toChargers(items []SeedChargerData, owner uuid.UUID, lg zerolog.Logger) []model.Charger {
	out := make([]model.Charger, 0, len(items))
	for _, item := range items {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			lg.Warn().Str("id", item.ID).Msg("skipping charger with invalid UUID")
			continue
		}
		power, err := decimal.NewFromString(item.PowerOutput)
		if err != nil || power.IsNegative() || power.GreaterThan(model.MaxPowerOutput) {
			lg.Warn().Str("id", item.ID).Str("powerOutput", item.PowerOutput).Msg("skipping charger with invalid power output")
			continue
		}
		status := model.ChargerStatus(item.Status)
		if status == "" {
			status = model.ChargerActive
		}
		if !status.Valid() || item.Name == "" || item.ConnectorType == "" ||
			item.Latitude < -90 || item.Latitude > 90 || item.Longitude < -180 || item.Longitude > 180 {
			lg.Warn().Str("id", item.ID).Msg("skipping invalid charger")
			continue
		}

		ownerID := owner
		out = append(out, model.Charger{
			ID:            id,
			Name:          item.Name,
			Latitude:      item.Latitude,
			Longitude:     item.Longitude,
			Status:        status,
			PowerOutput:   power.Round(model.PowerOutputScale),
			ConnectorType: item.ConnectorType,
			OwnerID:       &ownerID,
		})
	}
	return out
}

// seedChargers creates new chargers or updates existing ones by id.
func seedChargers(ctx context.Context, repo repository.ChargerRepository, chargers []model.Charger) (seeded int, updated int, err error) {
	for i := range chargers {
		charger := chargers[i]
		existing, err := repo.FindByID(ctx, charger.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return seeded, updated, fmt.Errorf("error checking charger %s: %w", charger.ID, err)
		}

		if existing != nil {
			existing.Name = charger.Name
			existing.Latitude = charger.Latitude
			existing.Longitude = charger.Longitude
			existing.Status = charger.Status
			existing.PowerOutput = charger.PowerOutput
			existing.ConnectorType = charger.ConnectorType
			if err := repo.Update(ctx, existing); err != nil {
				return seeded, updated, fmt.Errorf("error updating charger %s: %w", charger.ID, err)
			}
			updated++
			continue
		}

		if err := repo.Create(ctx, &charger); err != nil {
			return seeded, updated, fmt.Errorf("error creating charger %s: %w", charger.ID, err)
		}
		seeded++
	}
	return seeded, updated, nil
}
