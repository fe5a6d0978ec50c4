// cmd/tools/unit-loader/main.go
//
// unit-loader validates unit-of-competency files and seeds them into
// the requirement source tables. Seeding replaces any previously
// loaded requirements for the same unit.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"assessment-workers/pkg/unitfile"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validatePath := validateCmd.String("path", "", "Path to unit file (JSON)")

	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	seedPath := seedCmd.String("path", "", "Path to unit file (JSON)")
	seedDSN := seedCmd.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validatePath == "" {
			fmt.Println("Error: path is required for validate.")
			validateCmd.Usage()
			os.Exit(1)
		}
		uf, err := unitfile.Load(*validatePath)
		if err != nil {
			fmt.Printf("Error loading unit file: %v\n", err)
			os.Exit(1)
		}
		if err := uf.Validate(); err != nil {
			fmt.Printf("Unit file validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Unit file validation passed. %s carries %d requirements.\n", uf.Code, uf.RequirementCount())

	case "seed":
		seedCmd.Parse(os.Args[2:])
		if *seedPath == "" || *seedDSN == "" {
			fmt.Println("Error: path and dsn are required for seed.")
			seedCmd.Usage()
			os.Exit(1)
		}
		uf, err := unitfile.Load(*seedPath)
		if err != nil {
			fmt.Printf("Error loading unit file: %v\n", err)
			os.Exit(1)
		}
		if err := uf.Validate(); err != nil {
			fmt.Printf("Unit file validation failed: %v\n", err)
			os.Exit(1)
		}
		if err := seed(uf, *seedDSN); err != nil {
			fmt.Printf("Error seeding unit %s: %v\n", uf.Code, err)
			os.Exit(1)
		}
		fmt.Printf("Seeded unit %s with %d requirements.\n", uf.Code, uf.RequirementCount())

	case "help":
		fallthrough
	default:
		help()
	}
}

// seed writes the unit and its requirement sections in one
// transaction. Existing rows for the unit are removed first so a
// re-run reflects the file exactly.
func seed(uf *unitfile.UnitFile, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO units (code, title, link)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (code) DO UPDATE SET title = EXCLUDED.title, link = EXCLUDED.link`,
		uf.Code, uf.Title, uf.Link)
	if err != nil {
		return fmt.Errorf("failed to upsert unit: %w", err)
	}

	sourceTables := []string{
		"knowledge_evidence",
		"performance_evidence",
		"foundation_skills",
		"performance_criteria",
		"assessment_conditions",
	}
	for _, table := range sourceTables {
		if _, err := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE unit_code = $1`, table), uf.Code); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, e := range uf.KnowledgeEvidence {
		if _, err := tx.Exec(`
			INSERT INTO knowledge_evidence (unit_code, unit_link, evidence_number, knowledge_text)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)`,
			uf.Code, uf.Link, e.Number, e.Text); err != nil {
			return fmt.Errorf("failed to insert knowledge evidence: %w", err)
		}
	}
	for _, e := range uf.PerformanceEvidence {
		if _, err := tx.Exec(`
			INSERT INTO performance_evidence (unit_code, unit_link, evidence_number, evidence_text)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)`,
			uf.Code, uf.Link, e.Number, e.Text); err != nil {
			return fmt.Errorf("failed to insert performance evidence: %w", err)
		}
	}
	for _, s := range uf.FoundationSkills {
		if _, err := tx.Exec(`
			INSERT INTO foundation_skills (unit_code, unit_link, skill_name, skill_description)
			VALUES ($1, NULLIF($2, ''), $3, $4)`,
			uf.Code, uf.Link, s.Skill, s.Description); err != nil {
			return fmt.Errorf("failed to insert foundation skill: %w", err)
		}
	}
	for _, c := range uf.PerformanceCriteria {
		if _, err := tx.Exec(`
			INSERT INTO performance_criteria (unit_code, unit_link, criterion_number, criterion_text, element_name)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''))`,
			uf.Code, uf.Link, c.Number, c.Text, c.Element); err != nil {
			return fmt.Errorf("failed to insert performance criterion: %w", err)
		}
	}
	for _, c := range uf.AssessmentConditions {
		if _, err := tx.Exec(`
			INSERT INTO assessment_conditions (unit_code, unit_link, condition_text)
			VALUES ($1, NULLIF($2, ''), $3)`,
			uf.Code, uf.Link, c); err != nil {
			return fmt.Errorf("failed to insert assessment condition: %w", err)
		}
	}

	return tx.Commit()
}

func help() {
	fmt.Print(`
Usage: unit-loader <command> [flags]

Commands:
  validate  Validate a unit file without touching the database
  seed      Load a unit file into the requirement source tables
  help      Show this help message

Examples:
  unit-loader validate -path units/BSBWHS332X.json
  unit-loader seed -path units/BSBWHS332X.json -dsn "postgres://localhost/assessments?sslmode=disable"

Use 'unit-loader <command> -h' for more information about a command.
`)
}
