package mailroom

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/leolive/onebody/server/idgen"
)

// Token is the correlation identifier embedded in outbound message-id
// headers and delivery trailers. Its wire form is "<id>_<code>"; mail
// clients may append decoration after the token, so matching is done by
// extracting the fixed-shape token from whatever string carries it
// rather than by exact comparison.
type Token struct {
	MessageID int64
	Code      string
}

func (t Token) String() string {
	return fmt.Sprintf("%d_%s", t.MessageID, t.Code)
}

// tokenPattern matches "<id>_<code>" anywhere in a string. The code
// alphabet and length are fixed by idgen.NewCode.
var tokenPattern = regexp.MustCompile(`(\d{1,18})_([a-z2-7]{` + strconv.Itoa(idgen.CodeLength) + `})`)

// FindTokens extracts every candidate correlation token from s, in
// order of appearance. Surrounding decoration (angle brackets, client
// suffixes, the @host tail of a message-id) is ignored.
func FindTokens(s string) []Token {
	var tokens []Token
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, Token{MessageID: id, Code: m[2]})
	}
	return tokens
}

// NewMessageID builds the outbound message-id for one envelope of a
// delivered message: the correlation token, a per-envelope
// disambiguator and the site host.
func NewMessageID(m *Message, host string) string {
	return fmt.Sprintf("<%s_%s@%s>", m.Token(), idgen.New(), host)
}
