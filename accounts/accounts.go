package accounts

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"ctcbalance/util"
)

// TrackedAccount is a user named wallet. ID is the decoded SS58 address.
type TrackedAccount struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	ID      [32]byte `json:"-"`
}

// New validates every address up front so a typo fails the run before any
// chain access. The result is sorted by name.
func New(addresses map[string]string) ([]TrackedAccount, error) {

	if len(addresses) == 0 {
		return nil, errors.New("No accounts to track")
	}

	tracked := make([]TrackedAccount, 0, len(addresses))

	for name, address := range addresses {

		if name == "" {
			return nil, errors.Errorf("Account with address '%s' has no name", address)
		}

		_, id, err := util.SS58Decode(address)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid address for account '%s'", name)
		}

		tracked = append(tracked, TrackedAccount{
			Name:    name,
			Address: address,
			ID:      id,
		})
	}

	sort.Slice(tracked, func(i, j int) bool {
		return tracked[i].Name < tracked[j].Name
	})

	return tracked, nil
}

// Load reads an accounts file of `Name = Address` or `Name Address` lines.
// Blank lines and lines starting with # are ignored.
func Load(path string) ([]TrackedAccount, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open accounts file")
	}
	defer f.Close()

	addresses := make(map[string]string)
	scanner := bufio.NewScanner(f)

	for lineNo := 1; scanner.Scan(); lineNo++ {

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var name, address string

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			name, address = strings.TrimSpace(parts[0]), util.StripQuote(parts[1])
		} else {
			parts := strings.Fields(line)
			if len(parts) < 2 {
				return nil, errors.Errorf("%s:%d: expected 'Name = Address'", path, lineNo)
			}
			name, address = parts[0], util.StripQuote(parts[1])
		}

		if name == "" || address == "" {
			return nil, errors.Errorf("%s:%d: expected 'Name = Address'", path, lineNo)
		}

		if _, dup := addresses[name]; dup {
			return nil, errors.Errorf("%s:%d: duplicate account name '%s'", path, lineNo, name)
		}

		addresses[name] = address
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Unable to read accounts file")
	}

	return New(addresses)
}

// Names returns the account names in order
func Names(tracked []TrackedAccount) []string {
	names := make([]string, len(tracked))
	for i, a := range tracked {
		names[i] = a.Name
	}
	return names
}
