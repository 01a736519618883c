package main

import (
	"context"
	"fmt"
	"os"

	"securecmd/pkg/crypto"
	"securecmd/pkg/filecrypt"
	"securecmd/pkg/identity"
)

var (
	keygenCmd   = app.Command("keygen", "Generate an RSA key for the file command, or a server identity.")
	keygenOut   = keygenCmd.Flag("out", "Write the key to this file instead of the default.").Short('o').String()
	keygenForce = keygenCmd.Flag("force", "Overwrite an existing file.").Bool()
	keygenIdent = keygenCmd.Flag("identity", "Generate a server identity file instead.").Bool()
)

func doKeygen() error {
	cfg := loadConfig(nil)

	path := *keygenOut
	if path == "" {
		var err error
		if *keygenIdent {
			path = cfg.Server.IdentityFile
			if path == "" {
				path, err = identity.GetDefaultKeyPath(identity.DefaultIdentityFile)
			}
		} else {
			path, err = keyFilePath(cfg.File.KeyFile)
		}
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !*keygenForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if *keygenIdent {
		id := identity.New(nil)
		if err := id.Save(path); err != nil {
			return err
		}
		fmt.Printf("Server fingerprint %s written to %s\n", id.Fingerprint, path)
		return nil
	}

	key := crypto.GenerateKey(crypto.SystemRandom{})
	if err := filecrypt.SaveKey(path, key); err != nil {
		return err
	}
	fmt.Printf("%s written to %s\n", key.Public, path)
	return nil
}

func init() {
	commandHandlers = append(commandHandlers, func(_ context.Context, command string) bool {
		switch command {
		case keygenCmd.FullCommand():
			fatalIfError(doKeygen(), "Key generation failed.")
		default:
			return false
		}
		return true
	})
}
