package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/teleconsult-scheduling/internal/auth"
	"github.com/hackgods/teleconsult-scheduling/internal/config"
	"github.com/hackgods/teleconsult-scheduling/internal/db"
	"github.com/hackgods/teleconsult-scheduling/internal/logging"
)

const (
	practitionerCount = 20
	patientCount      = 500
	tokenTTL          = 24 * time.Hour
)

var specialties = []string{
	"Clínica Geral",
	"Cardiologia",
	"Dermatologia",
	"Endocrinologia",
	"Ginecologia",
	"Neurologia",
	"Pediatria",
	"Psiquiatria",
	"Psicologia",
	"Nutrição",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("", "info", "seed")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(time.Now().UnixNano())

	practitioners, err := seedPractitioners(ctx, pool, faker, practitionerCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed practitioners")
	}
	logger.Info().Int("count", len(practitioners)).Msg("practitioners seeded")

	patients, err := seedPatients(ctx, pool, faker, patientCount, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	printTokens(os.Stdout, cfg, practitioners[0], patients[0])
	logger.Info().Msg("seed complete")
}

// seedPractitioners creates verified practitioners with a weekday morning
// rule and a later afternoon rule. Only the first rule per weekday yields
// slots, so the afternoon rules show up in listings but not in availability.
func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			name := "Dr(a). " + faker.Name()
			spec := specialties[faker.Number(0, len(specialties)-1)]
			consultation := []int{20, 30, 45}[faker.Number(0, 2)]
			buffer := []int{0, 5, 10, 15}[faker.Number(0, 3)]
			verified := i == 0 || faker.Number(1, 10) > 1

			_, err := tx.Exec(ctx, `
				INSERT INTO practitioners (id, name, specialty, consultation_minutes, buffer_minutes, verified)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, id, name, spec, consultation, buffer, verified)
			if err != nil {
				return fmt.Errorf("insert practitioner: %w", err)
			}

			for day := 1; day <= 5; day++ {
				for _, window := range [][2]string{{"08:00", "12:00"}, {"14:00", "18:00"}} {
					_, err := tx.Exec(ctx, `
						INSERT INTO availability_rules (id, practitioner_id, day_of_week, start_time, end_time)
						VALUES ($1, $2, $3, $4::time, $5::time)
					`, uuid.New(), id, day, window[0], window[1])
					if err != nil {
						return fmt.Errorf("insert availability rule: %w", err)
					}
				}
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	const batchSize = 250

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			id := uuid.New()
			batch.Queue(`
				INSERT INTO patients (id, name, email, phone)
				VALUES ($1, $2, $3, $4)
			`, id, faker.Name(), faker.Email(), faker.Phone())
			ids = append(ids, id)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("insert patients: %w", err)
		}
		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}
	return ids, nil
}

func printTokens(out io.Writer, cfg config.Config, practitionerID, patientID uuid.UUID) {
	for _, who := range []struct {
		label string
		id    uuid.UUID
		role  string
	}{
		{"practitioner", practitionerID, auth.RolePractitioner},
		{"patient", patientID, auth.RolePatient},
		{"admin", uuid.New(), auth.RoleAdmin},
	} {
		tok, err := auth.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, who.id, who.role, tokenTTL)
		if err != nil {
			fmt.Fprintf(out, "%s token: %v\n", who.label, err)
			continue
		}
		fmt.Fprintf(out, "%-12s id=%s\n%-12s token=%s\n\n", who.label, who.id, "", tok)
	}
}
