package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/mail"

	"github.com/peterbourgon/ff/v3"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
)

var errHelp = errors.New("help provided")

// flags may also be set from the environment, e.g. NORMBOOK_ADMIN_EMAIL
const envVarPrefix = "NORMBOOK_ADMIN"

type commandLine struct {
	db      *sql.DB
	out     io.Writer
	normSvc norm.Service
	mailSvc core.EmailService
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                        - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  audit -template ID | -groupnorm ID [-email ADDR[,ADDR]] - check a boundary table for gaps, overlaps and missing grades")
	fmt.Fprintln(cli.out, "  regrade -groupnorm ID                         - re-resolve every norm of a group norm")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	auditCmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	auditCmd.SetOutput(cli.out)
	auditTemplate := auditCmd.String("template", "", "The template ID.")
	auditGroupNorm := auditCmd.String("groupnorm", "", "The group norm ID.")
	auditEmail := auditCmd.String("email", "", "Comma separated addresses the report is mailed to.")

	regradeCmd := flag.NewFlagSet("regrade", flag.ContinueOnError)
	regradeCmd.SetOutput(cli.out)
	regradeGroupNorm := regradeCmd.String("groupnorm", "", "The group norm ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "audit":
		if err := ff.Parse(auditCmd, args[2:], ff.WithEnvVarPrefix(envVarPrefix)); err != nil {
			return err
		}
		if (*auditTemplate == "") == (*auditGroupNorm == "") {
			auditCmd.Usage()
			return errHelp
		}
		var to []*mail.Address
		if *auditEmail != "" {
			var err error
			if to, err = mail.ParseAddressList(*auditEmail); err != nil {
				return fmt.Errorf("invalid -email: %w", err)
			}
		}
		return cli.audit(ctx, *auditTemplate, *auditGroupNorm, to)
	case "regrade":
		if err := ff.Parse(regradeCmd, args[2:], ff.WithEnvVarPrefix(envVarPrefix)); err != nil {
			return err
		}
		if *regradeGroupNorm == "" {
			regradeCmd.Usage()
			return errHelp
		}
		return cli.regrade(ctx, *regradeGroupNorm)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) audit(ctx context.Context, templateID, groupNormID string, to []*mail.Address) error {
	var issues []grading.Issue
	var err error
	subject := "template " + templateID
	if groupNormID != "" {
		subject = "group norm " + groupNormID
		issues, err = cli.normSvc.AuditGroupNorm(ctx, groupNormID, norm.SystemActor)
	} else {
		issues, err = cli.normSvc.AuditTemplate(ctx, templateID, norm.SystemActor)
	}
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		fmt.Fprintf(cli.out, "%s: no issues found\n", subject)
	} else {
		fmt.Fprintf(cli.out, "%s: %d issue(s) found\n", subject, len(issues))
		for _, iss := range issues {
			fmt.Fprintf(cli.out, "  [%s] %s class %d: %s\n", iss.Kind, iss.Gender, iss.Class, iss.Detail)
		}
	}

	if len(to) > 0 {
		addrs := make([]mail.Address, 0, len(to))
		for _, a := range to {
			addrs = append(addrs, *a)
		}
		cli.normSvc.SendAuditReport(subject, issues, addrs...)
		// the process exits right after the command returns
		cli.mailSvc.Wait()
	}
	return nil
}

func (cli *commandLine) regrade(ctx context.Context, groupNormID string) error {
	changed, err := cli.normSvc.Regrade(ctx, groupNormID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "group norm %s: %d norm(s) regraded\n", groupNormID, changed)
	return nil
}
