package main

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/grpcx"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
	"github.com/spf13/cobra"
)

// healthCmd is used as the container health probe.
func healthCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := grpcx.CheckHealth(ctx, addr, serviceName); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9081", "gRPC address")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "probe timeout")
	return cmd
}

// directoryCmd registers practitioner and patient rows for local setups.
func directoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage practitioner and patient directory rows",
	}

	var id, org, practitioner string
	practitionerCmd := &cobra.Command{
		Use:   "practitioner",
		Short: "Register a practitioner in an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			return storage.NewDirectoryRepository(pool).UpsertPractitioner(ctx, id, org)
		},
	}
	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Register a patient and their assigned practitioner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			return storage.NewDirectoryRepository(pool).UpsertPatient(ctx, model.Patient{
				ID: id, Organization: org, Practitioner: practitioner,
			})
		},
	}
	for _, c := range []*cobra.Command{practitionerCmd, patientCmd} {
		c.Flags().StringVar(&id, "id", "", "profile id")
		c.Flags().StringVar(&org, "org", "", "organization id")
		_ = c.MarkFlagRequired("id")
		_ = c.MarkFlagRequired("org")
	}
	patientCmd.Flags().StringVar(&practitioner, "practitioner", "", "assigned practitioner id")

	cmd.AddCommand(practitionerCmd, patientCmd)
	return cmd
}

// tokenCmd mints a development access token signed with JWT_SECRET.
func tokenCmd() *cobra.Command {
	var sub, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := config.RequiredString("JWT_SECRET")
			if err != nil {
				return err
			}
			switch model.Role(role) {
			case model.RoleEmployee, model.RolePatient, model.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			now := time.Now()
			token, err := auth.SignHS256(auth.Claims{
				Role: role,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   sub,
					Issuer:    config.String("JWT_ISSUER", ""),
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			}, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "subject (actor id)")
	cmd.Flags().StringVar(&role, "role", "", "employee, patient or adm")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
