package internal

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const defaultInspectLimit = 200

type InspectRow struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	EntityID  string `json:"entityId"`
	Namespace string `json:"namespace"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow

// Scan lists at most limit keys starting with prefix, mapped for display.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	if limit <= 0 {
		limit = defaultInspectLimit
	}
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.Key()), val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// InspectHandler serves the rows of ?prefix= as JSON. Only mounted at debug level.
func InspectHandler(db *badger.DB, mapper RowMapper) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := Scan(db, r.URL.Query().Get("prefix"), limit, mapper)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})
}

// DefaultMapper understands the store layout: "user:{id}", "user_email:{email}",
// "chat:{id}", "msg:{id}" and "room:{chat}:{unix_nano}:{message}".
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      strings.ToUpper(parts[0]),
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	if len(parts) >= 2 {
		row.EntityID = shorten(parts[len(parts)-1])
	}

	switch parts[0] {
	case "room":
		if len(parts) >= 4 {
			row.Namespace = shorten(parts[1])
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
		}
	case "user_email":
		row.Detail = "-> " + string(val)
	case "msg", "chat", "user":
		var record struct {
			Content   string    `json:"content"`
			Chat      string    `json:"chat"`
			ChatName  string    `json:"chat_name"`
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := json.Unmarshal(val, &record); err != nil {
			return row
		}
		if !record.CreatedAt.IsZero() {
			row.Timestamp = record.CreatedAt.Format("15:04:05")
		}
		row.Namespace = shorten(record.Chat)
		row.Detail = firstNonEmpty(record.Content, record.ChatName, record.Name, row.Detail)
	}
	return row
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
