package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"newsletter.backend/pkg/crypto"
)

var (
	printfFn     = fmt.Printf
	fatalfFn     = log.Fatalf
	stdin        io.Reader = os.Stdin
	generateFn             = crypto.GenerateRandomToken
	errNoToken             = errors.New("usage: token-hash <token> | token-hash - | token-hash --generate")
	generateFlag           = "--generate"
)

// resolveToken returns the plaintext to hash. "-" reads the first line of
// stdin so tokens stay out of shell history.
func resolveToken(args []string) (string, error) {
	if len(args) == 0 {
		return "", errNoToken
	}
	if args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}

func run(args []string) error {
	if len(args) > 0 && args[0] == generateFlag {
		token, err := generateFn(crypto.TokenBytes)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		printfFn("Token: %s\n", token)
		printfFn("Hash:  %s\n", crypto.HashToken(token))
		return nil
	}

	token, err := resolveToken(args)
	if err != nil {
		return err
	}
	printfFn("%s\n", crypto.HashToken(token))
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fatalfFn("%v", err)
	}
}
