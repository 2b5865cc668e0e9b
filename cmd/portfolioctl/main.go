// main.go - Admin control tool for the portfolio server
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gorm.io/gorm"

	"portfolio/internal"
	"portfolio/internal/analytics"
	"portfolio/internal/config"
	"portfolio/internal/jobs"
	"portfolio/internal/posts"
	"portfolio/internal/seeder"
	"portfolio/internal/timeframe"
	"portfolio/internal/users"
	"portfolio/internal/views"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&CreateAdminUserCommand{},
	&ChangeAdminPasswordCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&AggregateCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

var errNoApp = errors.New("app initialization failed, cannot connect to database")

func connection(app *internal.Application) (*gorm.DB, error) {
	if app == nil {
		return nil, errNoApp
	}
	return app.DBManager.GetConnection(), nil
}

// CreateAdminUserCommand implements the command to create an initial admin user
type CreateAdminUserCommand struct{}

func (c *CreateAdminUserCommand) Name() string        { return "create-admin-user" }
func (c *CreateAdminUserCommand) Description() string { return "Creates an admin user: <email> <password>" }

func (c *CreateAdminUserCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <email> <password>", c.Name())
	}
	email, password := strings.TrimSpace(args[0]), args[1]
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	log.Printf("Setting up admin user with email: %s", email)
	if err := users.CreateAdminUser(db, email, password); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			log.Printf("User %s already exists", email)
			return nil
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	if !users.IsAdminEmail(email, config.GetConfig().AdminEmails()) {
		log.Printf("Warning: %s is not in ALLOWED_ADMIN_EMAILS and cannot use admin routes", email)
	}
	return nil
}

// ChangeAdminPasswordCommand implements password update for existing admin user
type ChangeAdminPasswordCommand struct{}

func (c *ChangeAdminPasswordCommand) Name() string { return "change-admin-password" }
func (c *ChangeAdminPasswordCommand) Description() string {
	return "Changes the password of an existing admin user: [email] [password]"
}

func (c *ChangeAdminPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	var email string
	if len(args) >= 1 {
		email = strings.TrimSpace(args[0])
	} else {
		fmt.Print("Enter admin email: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(input)
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	if _, err := users.FindByEmail(db, email); err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	var newPassword string
	if len(args) >= 2 {
		newPassword = args[1]
	} else {
		newPassword, err = promptNewPassword()
		if err != nil {
			return err
		}
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	if err := users.ChangePassword(db, email, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// promptNewPassword reads a password twice without echoing it.
func promptNewPassword() (string, error) {
	fmt.Print("Enter new admin password (minimum 8 characters): ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm new admin password: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	password := strings.TrimSpace(string(passBytes))
	if password != strings.TrimSpace(string(confirmBytes)) {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	var userCount int64
	if err := db.Model(&users.User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	postCounts, err := posts.CountByStatus(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	var rawCount, dailyCount, monthlyCount int64
	for _, q := range []struct {
		model any
		dest  *int64
	}{
		{&views.RawView{}, &rawCount},
		{&analytics.DailyAggregate{}, &dailyCount},
		{&analytics.MonthlyAggregate{}, &monthlyCount},
	} {
		if err := db.Model(q.model).Count(q.dest).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
	}
	totalViews, err := analytics.TotalViews(ctx, db, "")
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Users: %d", userCount)
	log.Printf("- Posts: %d (%d published, %d drafts)", postCounts.Total, postCounts.Published, postCounts.Drafts)
	log.Printf("- Raw views: %d", rawCount)
	log.Printf("- Daily aggregates: %d", dailyCount)
	log.Printf("- Monthly aggregates: %d", monthlyCount)
	log.Printf("- Total views: %d", totalViews)

	if app.Scheduler != nil {
		for _, next := range app.Scheduler.Next() {
			log.Printf("- Next job run: %s", next.Format(time.RFC3339))
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	return nil
}

// AggregateCommand runs the aggregation steps by hand.
type AggregateCommand struct{}

func (c *AggregateCommand) Name() string { return "aggregate" }
func (c *AggregateCommand) Description() string {
	return "Runs aggregation: <daily|monthly|cleanup|all> [date]"
}

func (c *AggregateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	req, err := parseAggregateArgs(args)
	if err != nil {
		return err
	}
	if app == nil {
		return errNoApp
	}

	result, err := app.Runner.Run(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Success() {
		return errors.New("one or more steps failed")
	}
	return nil
}

func parseAggregateArgs(args []string) (jobs.Request, error) {
	if len(args) == 0 {
		return jobs.Request{}, errors.New("usage: aggregate <daily|monthly|cleanup|all> [date]")
	}
	req := jobs.Request{Type: jobs.Type(strings.ToLower(args[0]))}
	if len(args) > 1 {
		req.Date = args[1]
	}
	return req, nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample posts and views
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample data" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	viewCount := fs.Int("views", 2000, "number of view attempts to generate")
	days := fs.Int("days", 30, "number of past days to spread views over")
	aggregate := fs.Bool("aggregate", false, "run the daily aggregation for every seeded day")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return errNoApp
	}

	cfg := config.GetConfig()
	se := seeder.NewSeeder(app.DBManager, slog.Default(), cfg.Location(), *viewCount, *days)
	if err := se.Run(ctx); err != nil {
		return err
	}

	if !*aggregate {
		return nil
	}
	current := time.Now().In(cfg.Location())
	for i := *days; i >= 1; i-- {
		day := current.AddDate(0, 0, -i).Format(timeframe.DayLayout)
		if _, err := app.Runner.Run(ctx, jobs.Request{Type: jobs.TypeDaily, Date: day}); err != nil {
			return err
		}
	}
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: portfolioctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}
