// Command adminkey prints the bcrypt hash of an operator key for
// ADMIN_API_KEY_HASH. The key is read from stdin.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lingoloop/lingoloop/internal/auth"
)

func main() {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		slog.Error("reading key from stdin", "error", err)
		os.Exit(1)
	}

	key := strings.TrimSpace(line)
	if len(key) < 16 {
		slog.Error("admin key must be at least 16 characters")
		os.Exit(1)
	}

	hash, err := auth.HashAdminKey(key)
	if err != nil {
		slog.Error("hashing admin key", "error", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
