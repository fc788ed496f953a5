package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/kennelsync/internal/limiter"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/repository"
	"github.com/and161185/kennelsync/internal/service"
)

type addStaffCmd struct {
	Username    string `long:"username" required:"true" description:"Login name"`
	DisplayName string `long:"display-name" description:"Name shown in activity logs (defaults to the username)"`
	Role        string `long:"role" default:"staff" choice:"viewer" choice:"staff" choice:"admin" description:"Account role"`
	Password    string `long:"password" env:"KENNEL_STAFF_PASSWORD" description:"Account password"`
}

func (cmd *addStaffCmd) create(ctx context.Context, staff repository.StaffRepository) (string, error) {
	if cmd.Password == "" {
		return "", errors.New("a password is required (--password or KENNEL_STAFF_PASSWORD)")
	}
	// token settings are irrelevant for account creation
	auth := service.NewAuthService(staff, nil, time.Minute, limiter.NewMemory(limiter.DefaultPolicy))
	id, err := auth.Register(ctx, cmd.Username, cmd.DisplayName, cmd.Password, model.Role(cmd.Role))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (cmd *addStaffCmd) Execute([]string) error {
	log, err := newLogger(Config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if Config.DB.Storage != "postgres" {
		return errors.New("add-staff needs --db.storage=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	be, err := openPostgres(ctx, Config.DB, log)
	if err != nil {
		return err
	}
	defer be.close()

	id, err := cmd.create(ctx, be.staff)
	if err != nil {
		return err
	}
	log.Info("staff account created", zap.String("username", cmd.Username), zap.String("role", cmd.Role))
	fmt.Fprintln(os.Stdout, id)
	return nil
}
