package clients

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/database"
)

func openStore() (*database.JSONStore, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return database.OpenJSONStore(cfg.DatabasePath())
}

func addCmd(name string, crypto bool, blacklist []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	cred := database.Credential{
		Name:      name,
		APIKey:    uuid.NewString(),
		Blacklist: database.Blacklist{Messages: blacklist},
	}
	if crypto {
		cred.CryptoKey = newCryptoKey()
	}

	if err := store.Add(cred); err != nil {
		return fmt.Errorf("error saving credential: %w", err)
	}

	fmt.Printf("✓ Device authorized: %s\n", name)
	fmt.Printf("  access key: %s\n", cred.APIKey)
	if cred.CryptoKey != "" {
		fmt.Printf("  crypto key: %s\n", cred.CryptoKey)
	} else {
		fmt.Println("  channel: plaintext")
	}
	return nil
}

func listCmd() error {
	store, err := openStore()
	if err != nil {
		return err
	}

	creds := store.List()
	if len(creds) == 0 {
		fmt.Println("No devices authorized")
		return nil
	}
	for _, c := range creds {
		channel := "plaintext"
		if c.CryptoKey != "" {
			channel = "encrypted"
		}
		fmt.Printf("%-20s %s  (%s)\n", c.Name, c.APIKey, channel)
		if len(c.Blacklist.Messages) > 0 {
			fmt.Printf("%-20s blacklist: %v\n", "", c.Blacklist.Messages)
		}
	}
	return nil
}

func removeCmd(nameOrKey string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	apiKey := nameOrKey
	for _, c := range store.List() {
		if c.Name == nameOrKey {
			apiKey = c.APIKey
			break
		}
	}

	if err := store.Remove(apiKey); err != nil {
		return fmt.Errorf("error removing credential: %w", err)
	}
	fmt.Printf("✓ Access revoked: %s\n", nameOrKey)
	return nil
}

// newCryptoKey issues a random 16-character hex key, matching the cipher
// channel's fixed key size.
func newCryptoKey() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
