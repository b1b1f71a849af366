package main

import (
	"fmt"
	"os"
	"time"

	// Packages
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	version "github.com/mutablelogic/go-upload/pkg/version"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type TokenCommands struct {
	Token TokenCommand `cmd:"" name:"token" help:"Issue a bearer token for uploads." group:"AUTH"`
}

type VersionCommands struct {
	Version VersionCommand `cmd:"" name:"version" help:"Print version information."`
}

type TokenCommand struct {
	User   string        `arg:"" optional:"" default:"${USER}" help:"User the token identifies"`
	Secret string        `name:"jwt-secret" env:"UPLOAD_JWT_SECRET" required:"" help:"Secret the server verifies tokens with"`
	TTL    time.Duration `name:"ttl" default:"24h" help:"Token lifetime"`
}

type VersionCommand struct{}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *TokenCommand) Run(ctx *Globals) error {
	token, err := httphandler.NewToken([]byte(cmd.Secret), cmd.User, cmd.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func (cmd *VersionCommand) Run(ctx *Globals) error {
	_, err := os.Stdout.Write(version.JSON(execName()))
	if err == nil {
		fmt.Println()
	}
	return err
}
