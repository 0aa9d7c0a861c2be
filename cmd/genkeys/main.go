package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"kvrelay/auth"
	"kvrelay/config"

	"gopkg.in/yaml.v3"
)

func main() {
	outDir := flag.String("out", ".", "Directory for the generated PEM files")
	bits := flag.Int("bits", 2048, "RSA key size")
	subject := flag.String("token-subject", "", "Also sign a client token for this subject")
	roles := flag.String("token-roles", "read,write", "Comma separated roles for the client token")
	flag.Parse()

	privatePEM, publicPEM, err := generateKeys(*bits)
	if err != nil {
		fail("generate keys", err)
	}

	for name, data := range map[string][]byte{"private.pem": privatePEM, "public.pem": publicPEM} {
		if err := os.WriteFile(filepath.Join(*outDir, name), data, 0o600); err != nil {
			fail("write "+name, err)
		}
	}

	authCfg := config.AuthConfig{
		Enabled:       true,
		PrivateKey:    string(privatePEM),
		PublicKey:     string(publicPEM),
		TokenDuration: 3600,
	}

	// proxies only need the public half; nodes need both to sign replica requests
	out, err := yaml.Marshal(map[string]config.AuthConfig{"auth": authCfg})
	if err != nil {
		fail("encode config", err)
	}
	fmt.Printf("# keys written to %s\n%s", *outDir, out)

	if *subject != "" {
		svc, err := auth.NewAuthService(&authCfg)
		if err != nil {
			fail("auth service", err)
		}
		token, err := svc.GenerateToken(*subject, config.SplitList(*roles))
		if err != nil {
			fail("sign token", err)
		}
		fmt.Printf("# token for %s\n# %s\n", *subject, token)
	}
}

func generateKeys(bits int) ([]byte, []byte, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})
	return privatePEM, publicPEM, nil
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", what, err)
	os.Exit(1)
}
