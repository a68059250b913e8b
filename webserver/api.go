package webserver

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"ctcbalance/ctcclient"
	"ctcbalance/storage"
	"ctcbalance/util"
)

//
// Current node status and the last tracking run
// ------------------------------------------------------------------------------------
func (ws *WebServer) getHealth(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getHealth")

	s := struct {
		Ok      bool                   `json:"ok"`
		Ts      int64                  `json:"ts"`
		Chain   *ctcclient.ChainStatus `json:"chain,omitempty"`
		LastRun *storage.RunSummary    `json:"lastRun,omitempty"`
	}{
		Ok: true,
		Ts: time.Now().Unix(),
	}

	if ws.status != nil {
		snap := ws.status.Snapshot()
		s.Chain = &snap
	}

	run, ok, err := ws.store.GetLastRun()
	if err != nil {
		log.WithError(err).Error("API - getHealth")
		apiErrorStatus(errors.Wrap(err, "Unable to get last run from DB"), http.StatusInternalServerError, w)

		return
	}
	if ok {
		s.LastRun = &run
	}

	apiReturn(s, w)
}

func (ws *WebServer) getAccounts(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getAccounts")

	apiReturn(map[string]interface{}{"accounts": ws.accounts}, w)
}

//
// Balances per date, optionally limited with ?from=YYYY-MM-DD&to=YYYY-MM-DD
// ------------------------------------------------------------------------------------
func (ws *WebServer) getBalances(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getBalances")

	from, to, err := dateRange(r)
	if err != nil {
		apiError(err, w)
		return
	}

	history, err := ws.store.GetBalanceHistory()
	if err != nil {
		log.WithError(err).Error("API - getBalances")
		apiErrorStatus(errors.Wrap(err, "Unable to get balances from DB"), http.StatusInternalServerError, w)

		return
	}

	history = filterDates(history, from, to)

	apiReturn(map[string]interface{}{
		"dates":    sortedDates(history),
		"balances": history,
	}, w)
}

func (ws *WebServer) getRewards(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getRewards")

	from, to, err := dateRange(r)
	if err != nil {
		apiError(err, w)
		return
	}

	history, err := ws.store.GetRewardHistory()
	if err != nil {
		log.WithError(err).Error("API - getRewards")
		apiErrorStatus(errors.Wrap(err, "Unable to get rewards from DB"), http.StatusInternalServerError, w)

		return
	}

	methods, err := ws.store.GetRewardMethods()
	if err != nil {
		log.WithError(err).Error("API - getRewards")
		apiErrorStatus(errors.Wrap(err, "Unable to get reward methods from DB"), http.StatusInternalServerError, w)

		return
	}

	history = filterDates(history, from, to)

	apiReturn(map[string]interface{}{
		"dates":   sortedDates(history),
		"rewards": history,
		"methods": methods,
	}, w)
}

// getAccountRewards returns one account's daily rewards and their sum
func (ws *WebServer) getAccountRewards(w http.ResponseWriter, r *http.Request) {

	name := mux.Vars(r)["account"]

	log.WithField("Account", name).Trace("API - getAccountRewards")

	known := false
	for _, a := range ws.accounts {
		if a.Name == name {
			known = true
			break
		}
	}

	if !known {
		apiErrorStatus(errors.Errorf("Unknown account '%s'", name), http.StatusNotFound, w)
		return
	}

	history, err := ws.store.GetRewardHistory()
	if err != nil {
		log.WithError(err).Error("API - getAccountRewards")
		apiErrorStatus(errors.Wrap(err, "Unable to get rewards from DB"), http.StatusInternalServerError, w)

		return
	}

	daily := make(map[string]decimal.Decimal)
	total := decimal.Zero

	for date, amounts := range history {
		if v, ok := amounts[name]; ok {
			daily[date] = v
			total = total.Add(v)
		}
	}

	apiReturn(map[string]interface{}{
		"account": name,
		"rewards": daily,
		"total":   total,
	}, w)
}

func dateRange(r *http.Request) (string, string, error) {

	keys := r.URL.Query()
	from, to := keys.Get("from"), keys.Get("to")

	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(util.DATE_FORMAT, d); err != nil {
			return "", "", errors.Wrapf(err, "Unable to parse date '%s'", d)
		}
	}

	return from, to, nil
}

// filterDates keeps dates within [from, to]; empty bounds are open
func filterDates(h storage.History, from, to string) storage.History {

	if from == "" && to == "" {
		return h
	}

	out := make(storage.History, len(h))
	for date, v := range h {
		if (from == "" || date >= from) && (to == "" || date <= to) {
			out[date] = v
		}
	}

	return out
}

func sortedDates(h storage.History) []string {

	dates := make([]string, 0, len(h))
	for d := range h {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	return dates
}
