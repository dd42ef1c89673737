package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cradoe/kudi/internal/repository"
)

// activity log descriptions shared between handlers and workers
const (
	UserActivityLogRegistrationDescription = "Account registration"
	UserActivityLogLoginDescription        = "Logged in"
	UserActivityLogFailedLoginDescription  = "Failed login attempt"
	UserActivityLogDeletedDescription      = "Account deleted"

	WalletActivityLogCreatedDescription  = "Wallet created"
	WalletActivityLogCreditedDescription = "Wallet credited"
	WalletActivityLogDeletedDescription  = "Wallet deleted"

	TransactionActivityLogTransferDescription = "Wallet transfer"
)

// maxHistoryLimit caps the page size a caller can request for listings.
const maxHistoryLimit = 100

type queryStringValues struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

func retrieveUrlQueryValues(r *http.Request) *queryStringValues {
	var queryValues = &queryStringValues{}

	// Parse start_date if provided
	startDateStr := r.URL.Query().Get("start_date")
	if startDateStr != "" {
		parsedStart, err := time.Parse("2006-01-02", startDateStr)
		if err == nil {
			queryValues.StartDate = &parsedStart
		}
	}

	// Parse end_date if provided
	endDateStr := r.URL.Query().Get("end_date")
	if endDateStr != "" {
		parsedEnd, err := time.Parse("2006-01-02", endDateStr)
		if err == nil {
			queryValues.EndDate = &parsedEnd
		}
	}

	// Parse pagination params
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("page")

	// Default pagination values
	offset := 0
	limit := 10

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			if parsedLimit > maxHistoryLimit {
				parsedLimit = maxHistoryLimit
			}
			limit = parsedLimit
		}
	}
	queryValues.Limit = limit

	if offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 1 {
			offset = (parsedOffset - 1) * limit
		}
	}
	queryValues.Offset = offset

	return queryValues
}

func (q *queryStringValues) historyFilter() *repository.HistoryFilter {
	return &repository.HistoryFilter{
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
}

func pathValueID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
