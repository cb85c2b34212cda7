package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/service"
	"golang.org/x/term"
)

// issue-token signs a candidate or admin JWT, mainly for operators and local
// testing. Missing values are prompted for when stdin is a terminal.
func main() {
	var (
		kind   string
		userID int
	)
	flag.StringVar(&kind, "type", "", "Token type: candidate or admin")
	flag.IntVar(&userID, "user", 0, "User ID to embed in the token")
	flag.Parse()

	cfg := config.Load()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	reader := bufio.NewReader(os.Stdin)

	if kind == "" {
		if !interactive {
			fail("-type is required")
		}
		fmt.Print("Token type (candidate/admin, default candidate): ")
		kind = readLine(reader)
		if kind == "" {
			kind = string(service.TokenTypeCandidate)
		}
	}

	if userID <= 0 {
		if !interactive {
			fail("-user is required")
		}
		fmt.Print("User ID: ")
		n, err := strconv.Atoi(readLine(reader))
		if err != nil || n <= 0 {
			fail("user ID must be a positive number")
		}
		userID = n
	}

	// The signing secret can be overridden to mint tokens for another environment.
	if interactive {
		fmt.Print("Signing secret (empty uses JWT_SECRET): ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fail("could not read secret")
		}
		if s := strings.TrimSpace(string(secret)); s != "" {
			cfg.JWTSecret = s
		}
	}

	token, err := service.NewAuthService(cfg).GenerateToken(service.TokenType(strings.ToLower(kind)), userID)
	if err != nil {
		fail(err.Error())
	}

	if interactive {
		fmt.Printf("\n%s token for user %d (expires in %s):\n", kind, userID, cfg.JWTExpiry)
	}
	fmt.Println(token)
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	os.Exit(1)
}
