package main

import (
	"context"
	"fmt"

	"securecmd/pkg/filecrypt"
	"securecmd/pkg/identity"
)

var (
	fileCmd  = app.Command("file", "Cypher or decypher a file with the stored RSA key.")
	filePath = fileCmd.Arg("path", "The file to transform.").Required().String()
	fileMode = fileCmd.Arg("mode", "cypher or decypher.").Required().String()
	fileKey  = fileCmd.Flag("key", "The RSA key file.").Short('k').String()
)

func keyFilePath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return identity.GetDefaultKeyPath(filecrypt.DefaultKeyFile)
}

func doFile() error {
	mode, err := filecrypt.ParseMode(*fileMode)
	if err != nil {
		app.FatalUsage("%v\n", err)
	}

	cfg := loadConfig(nil)
	if *fileKey != "" {
		cfg.File.KeyFile = *fileKey
	}

	path, err := keyFilePath(cfg.File.KeyFile)
	if err != nil {
		return err
	}

	key, created, err := filecrypt.LoadOrCreateKey(path, nil)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Generated new RSA key in %s\n", path)
	}

	out, err := filecrypt.Process(*filePath, mode, key)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", out)
	return nil
}

func init() {
	commandHandlers = append(commandHandlers, func(_ context.Context, command string) bool {
		switch command {
		case fileCmd.FullCommand():
			fatalIfError(doFile(), "File command failed.")
		default:
			return false
		}
		return true
	})
}
