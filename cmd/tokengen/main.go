// Command tokengen mints access tokens for local testing.  Holders are not
// managed by this service; any signer sharing JWT_SECRET may issue tokens.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/transit-seat-reservation/internal/middleware"
	"github.com/iliyamo/transit-seat-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	secret := flag.StringP("secret", "s", os.Getenv("JWT_SECRET"), "HS256 signing secret (defaults to $JWT_SECRET)")
	holder := flag.Uint64P("holder", "u", 1, "holder id placed in the sub claim")
	role := flag.StringP("role", "r", middleware.RoleUser, "role claim: USER or ADMIN")
	ttl := flag.DurationP("ttl", "t", time.Hour, "token lifetime")
	flag.Parse()

	r := strings.ToUpper(*role)
	if r != middleware.RoleUser && r != middleware.RoleAdmin {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "missing --secret and JWT_SECRET")
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(*secret, *holder, r, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
