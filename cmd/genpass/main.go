// Command genpass provisions gateway accounts for broker mode. It
// prints a random password with its salt and hash, ready to insert into
// mesh_gateways, and can also mint a Curve25519 key pair for the
// bridge's own node.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/wpamesh/mesh-discord-bridge/pkg/auth"
	"github.com/wpamesh/mesh-discord-bridge/pkg/meshtastic/pki"
)

func main() {
	length := flag.Int("length", 16, "Length of the password in bytes (will be hex encoded, so output is 2x this)")
	name := flag.String("name", "", "Gateway account name; when set, an INSERT statement is printed")
	keypair := flag.Bool("keypair", false, "Also generate a Curve25519 key pair for the bridge node")
	flag.Parse()

	password, err := auth.RandomHex(*length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generating password: %v\n", err)
		os.Exit(1)
	}
	hash, salt := auth.GenerateHashAndSalt(password)

	fmt.Printf("Password: %s\n", password)
	fmt.Printf("Salt:     %s\n", salt)
	fmt.Printf("Hash:     %s\n", hash)

	if *name != "" {
		fmt.Printf("\nINSERT INTO mesh_gateways (name, password_hash, salt) VALUES ('%s', '%s', '%s');\n",
			*name, hash, salt)
	}

	if *keypair {
		pub, priv, err := pki.NewKeyPair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generating key pair: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nPublic key:  %s\n", base64.StdEncoding.EncodeToString(pub))
		fmt.Printf("Private key: %s\n", base64.StdEncoding.EncodeToString(priv))
	}
}
