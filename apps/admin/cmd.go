package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/student"
	"github.com/institutohope/platform/storage/remote"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = remote.Migrate    // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf *core.Config
	ctrl *student.Controller
	pool *pgxpool.Pool // nil in local mode
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate - bring the document store schema up to date (remote mode only)")
	fmt.Println("  creatementor -email EMAIL [-name NAME] [-city CITY] - create the command account. The password will be prompted next.")
	fmt.Println("  wipelocal - erase all device-local data")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createMentorCmd := flag.NewFlagSet("creatementor", flag.ExitOnError)
	createMentorEmail := createMentorCmd.String("email", "", "The mentor's email; must match the configured command email.")
	createMentorName := createMentorCmd.String("name", "Comando Hope", "The mentor's display name.")
	createMentorCity := createMentorCmd.String("city", "Rio de Janeiro", "The mentor's city.")

	switch args[1] {
	case "migrate":
		if cli.pool == nil {
			return student.ErrNotConfigured
		}
		return migrateFunc(context.Background(), cli.pool)

	case "creatementor":
		if err := createMentorCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createMentorEmail == "" {
			createMentorCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			createMentorCmd.Usage()
			return errHelp
		}
		return cli.createMentor(*createMentorName, *createMentorEmail, *createMentorCity, string(pwd))

	case "wipelocal":
		return cli.ctrl.WipeLocal()

	default:
		cli.printUsage()
		return errHelp
	}
}

// createMentor registers the command account and signs it out again.
func (cli *commandLine) createMentor(name, email, city, pwd string) error {
	ns := student.NewStudent{
		Name:     name,
		Email:    email,
		Password: pwd,
		City:     city,
		Role:     student.RoleMentor,
	}
	if err := ns.Validate(newValidator()); err != nil {
		return err
	}

	ctx := context.Background()
	rec, err := cli.ctrl.Register(ctx, ns)
	if err != nil {
		return err
	}
	fmt.Printf("mentor account created: %s <%s>\n", rec.Name, rec.Email)
	return cli.ctrl.Logout(ctx)
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate
}
