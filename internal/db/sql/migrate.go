package sql

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the tables when they don't exist yet. All statements are idempotent,
// so it's safe to call it on each start
func (s *Store) Migrate(ctx context.Context) error {
	content, err := migrations.ReadFile(fmt.Sprintf("migrations/%s.sql", s.dialect))
	if err != nil {
		return fmt.Errorf("there are no migrations for the %s dialect", s.dialect)
	}

	statements, err := splitStatements(content)
	if err != nil {
		return err
	}

	conn := s.conn.WithContext(ctx)
	for _, statement := range statements {
		err := conn.Exec(statement).Error
		if err != nil {
			return fmt.Errorf("unable to execute migration %q: %w", statement, err)
		}
	}

	return nil
}

// splitStatements skips comment lines and splits the script into statements terminated with ";" at the line end
func splitStatements(content []byte) ([]string, error) {
	var statements []string
	var builder strings.Builder

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "--") {
			continue
		}

		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}

		builder.WriteString(line)
		if strings.HasSuffix(line, ";") {
			statements = append(statements, builder.String())
			builder.Reset()
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if rest := strings.TrimSpace(builder.String()); rest != "" {
		statements = append(statements, rest)
	}

	return statements, nil
}
