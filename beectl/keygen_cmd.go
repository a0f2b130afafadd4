package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate a milestone issuer key pair and the matching account ID",
	Run:   runKeygenCommand,
}

func initKeygenCmd() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygenCommand(_ *cobra.Command, _ []string) {
	var seed [ed25519.SeedSize]byte
	_, err := rand.Read(seed[:])
	cobra.CheckErr(err)

	privateKey := ed25519.NewKeyFromSeed(seed[:])
	publicKey := privateKey.Public().(ed25519.PublicKey)
	// the balance account controlled by the key is the hash of the public key
	account := blake2b.Sum256(publicKey)

	fmt.Printf("private key: %s\n", hex.EncodeToString(privateKey))
	fmt.Printf("public key:  %s\n", hex.EncodeToString(publicKey))
	fmt.Printf("account ID:  %s\n", hex.EncodeToString(account[:]))
	fmt.Printf("\nadd the public key to 'milestones.public_keys' in bee.yaml to authorize it\n")
}
