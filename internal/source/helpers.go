package source

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

// checkStatus drains and closes non-2xx responses. 4xx other than 429 are
// not worth retrying.
func checkStatus(name string, r *http.Response) error {
	if r.StatusCode/100 == 2 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
	r.Body.Close()
	err := fmt.Errorf("%s %d: %s", name, r.StatusCode, strings.TrimSpace(string(b)))
	if r.StatusCode/100 == 4 && r.StatusCode != http.StatusTooManyRequests {
		return util.Permanent(err)
	}
	return err
}

func sortByPosition(evs []model.RawEvent) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Position < evs[j].Position })
}
