package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"parts_search_v1_202610/internal/model"
	"parts_search_v1_202610/pkg/net"
)

func newTestSupplier(url string) *model.Supplier {
	s := &model.Supplier{
		Name:     "abcp-test",
		IsActive: true,
		APIType:  model.SupplierAPITypeAutoparts,
		APIURL:   url,
		Login:    "demo",
		Password: "secret",
		OfficeID: "77",
	}
	s.ID = 1
	return s
}

func newTestClient(sup *model.Supplier, logs *fakeCallLogRepo) *AbcpClient {
	dispatcher := net.NewDispatcher(net.Config{Timeout: 2 * time.Second})
	return NewAbcpClient(sup, dispatcher, logs, zap.NewNop(), ClientOptions{AnalogConcurrency: 2})
}

// countingServer 记录请求次数
func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestAbcpClient_PreconditionsSkipNetwork(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	tests := []struct {
		name   string
		mutate func(s *model.Supplier)
	}{
		{"inactive", func(s *model.Supplier) { s.IsActive = false }},
		{"missing password", func(s *model.Supplier) { s.Password = "" }},
		{"missing login", func(s *model.Supplier) { s.Login = "" }},
		{"missing url", func(s *model.Supplier) { s.APIURL = "" }},
		{"wrong api type", func(s *model.Supplier) { s.APIType = model.SupplierAPITypePriceFile }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := newTestSupplier(srv.URL)
			tt.mutate(sup)
			client := newTestClient(sup, &fakeCallLogRepo{})

			_, err := client.ListBrands(context.Background(), "C15300")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			_, err = client.ListAnalogs(context.Background(), "C15300", "MANN-FILTER", 0)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}

	assert.Equal(t, int32(0), hits.Load(), "配置错误时不应发起任何网络请求")
}

func TestAbcpClient_RequestParams(t *testing.T) {
	var got http.Header
	var path string
	var query map[string][]string

	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header
		path = r.URL.Path
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	sup := newTestSupplier(srv.URL + "/")
	sup.UseOnlineStocks = true
	client := newTestClient(sup, &fakeCallLogRepo{})

	_, err := client.ListArticles(context.Background(), "C15300", "MANN-FILTER")
	require.NoError(t, err)

	sum := md5.Sum([]byte("secret"))
	assert.Equal(t, "/search/articles/", path)
	assert.Equal(t, "demo", first(query["userlogin"]))
	assert.Equal(t, hex.EncodeToString(sum[:]), first(query["userpsw"]))
	assert.Equal(t, "C15300", first(query["number"]))
	assert.Equal(t, "MANN-FILTER", first(query["brand"]))
	assert.Equal(t, "77", first(query["officeId"]))
	assert.Equal(t, "1", first(query["useOnlineStocks"]))
	assert.NotContains(t, query, "password")
	assert.Equal(t, "Parts-Search/1.0", got.Get("User-Agent"))
}

func TestAbcpClient_OnlineStocksOmittedWhenDisabled(t *testing.T) {
	var query map[string][]string
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`[]`))
	})

	sup := newTestSupplier(srv.URL)
	sup.OfficeID = ""
	client := newTestClient(sup, &fakeCallLogRepo{})

	_, err := client.ListBrands(context.Background(), "C15300")
	require.NoError(t, err)
	assert.NotContains(t, query, "useOnlineStocks")
	assert.NotContains(t, query, "officeId")
	assert.NotContains(t, query, "brand")
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func TestAbcpClient_Classification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   error
		wantStatus int
		wantCode   string
	}{
		{"forbidden", http.StatusForbidden, `{"errorCode":1,"errorMessage":"denied"}`, ErrAuthentication, 403, ""},
		{"server error", http.StatusInternalServerError, `oops`, ErrHTTP, 500, ""},
		{"not found", http.StatusNotFound, ``, ErrHTTP, 404, ""},
		{"non json", http.StatusOK, `<html>maintenance</html>`, ErrMalformedResponse, 200, ""},
		{"api error", http.StatusOK, `{"errorCode":102,"errorMessage":"Unknown login"}`, ErrSupplierAPI, 200, "102"},
		{"api error message only", http.StatusOK, `{"errorMessage":"Bad request"}`, ErrSupplierAPI, 200, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{})

			_, err := client.ListBrands(context.Background(), "C15300")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantKind), "got %v", err)

			var se *SupplierError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, model.SupplierMethodBrands, se.Method)
			assert.Equal(t, int64(1), se.SupplierID)
		})
	}
}

func TestAbcpClient_SuccessReturnsRawPayload(t *testing.T) {
	body := `[{"brand":"MANN-FILTER","number":"C15300","description":"Air filter","price":12.5}]`
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(body))
	})
	client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{})

	raw, err := client.ListBrands(context.Background(), "C15300")
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))
}

func TestAbcpClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(newTestSupplier(url), &fakeCallLogRepo{})
	_, err := client.ListBrands(context.Background(), "C15300")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHTTP))
	var se *SupplierError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.StatusCode)
}

func TestAbcpClient_Timeout(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	dispatcher := net.NewDispatcher(net.Config{Timeout: 100 * time.Millisecond})
	client := NewAbcpClient(newTestSupplier(srv.URL), dispatcher, nil, zap.NewNop(), ClientOptions{})

	start := time.Now()
	_, err := client.ListBrands(context.Background(), "C15300")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHTTP))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAbcpClient_Windows1251(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String(`[{"brand":"АВТОВАЗ","number":"2101","description":"Фильтр масляный"}]`)
	require.NoError(t, err)

	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=windows-1251")
		w.Write([]byte(encoded))
	})
	client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{})

	raw, err := client.ListArticles(context.Background(), "2101", "АВТОВАЗ")
	require.NoError(t, err)

	records := NormalizeParts(raw)
	require.Len(t, records, 1)
	assert.Equal(t, "АВТОВАЗ", records[0].Brand)
	assert.Equal(t, "Фильтр масляный", records[0].Description)
}

func TestAbcpClient_CallLogRedacted(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "brands") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`[]`))
	})
	logs := &fakeCallLogRepo{}
	client := newTestClient(newTestSupplier(srv.URL), logs)

	_, err := client.ListArticles(context.Background(), strings.Repeat("X", 600), "")
	require.NoError(t, err)
	_, err = client.ListBrands(context.Background(), "C15300")
	require.Error(t, err)

	entries := logs.snapshot()
	require.Len(t, entries, 2)

	ok := entries[0]
	assert.Equal(t, model.SupplierMethodArticles, ok.Method)
	assert.Equal(t, model.SupplierCallStatusSuccess, ok.Status)
	assert.Equal(t, 200, ok.StatusCode)
	assert.LessOrEqual(t, len(ok.Params), 512)
	assert.NotEmpty(t, ok.RequestID)

	failed := entries[1]
	assert.Equal(t, model.SupplierCallStatusFailed, failed.Status)
	assert.Equal(t, ErrorKindAuthentication, failed.ErrorKind)
	assert.Equal(t, 403, failed.StatusCode)

	sum := md5.Sum([]byte("secret"))
	for _, e := range entries {
		assert.NotContains(t, e.Params, hex.EncodeToString(sum[:]))
		assert.NotContains(t, e.Params, "demo")
	}
}

func TestAbcpClient_CallLogFailureIgnored(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["BOSCH"]`))
	})
	client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{failing: true})

	raw, err := client.ListBrands(context.Background(), "0986")
	require.NoError(t, err)
	assert.Equal(t, `["BOSCH"]`, string(raw))
}

func TestAbcpClient_ListAnalogs(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/search/brands/":
			w.Write([]byte(`{"0":{"brand":"MANN-FILTER","number":"C15300"},"1":{"brand":"FILTRON","number":"AP151"}}`))
		case "/search/articles/":
			switch q.Get("brand") {
			case "MANN-FILTER":
				w.Write([]byte(`[
					{"brand":"MANN-FILTER","number":"C15300","articleId":"1","price":10},
					{"brand":"MANN-FILTER","number":"C15300","articleId":"1","price":10},
					{"brand":"BOSCH","number":"F026400","articleId":"2","price":8}
				]`))
			case "FILTRON":
				w.WriteHeader(http.StatusInternalServerError)
			}
		}
	})
	client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{})

	records, err := client.ListAnalogs(context.Background(), "C15300", "mann-filter", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "MANN-FILTER", records[0].Brand)
	assert.True(t, records[0].IsOriginal)
	assert.Equal(t, "BOSCH", records[1].Brand)
	assert.False(t, records[1].IsOriginal)
	for _, r := range records {
		assert.Equal(t, int64(1), r.SupplierID)
		assert.Equal(t, "abcp-test", r.SupplierName)
	}
}

func TestAbcpClient_ListAnalogsLimit(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/brands/" {
			w.Write([]byte(`["A"]`))
			return
		}
		var sb strings.Builder
		sb.WriteString("[")
		for i := 0; i < 30; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(`{"brand":"A","number":"N` + string(rune('a'+i%26)) + string(rune('a'+i/26)) + `"}`)
		}
		sb.WriteString("]")
		w.Write([]byte(sb.String()))
	})
	client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{})

	records, err := client.ListAnalogs(context.Background(), "N", "A", 0)
	require.NoError(t, err)
	assert.Len(t, records, DefaultAnalogLimit)

	records, err = client.ListAnalogs(context.Background(), "N", "A", 5)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestAbcpClient_ListAnalogsAllBrandsFail(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/brands/" {
			w.Write([]byte(`["A","B"]`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(newTestSupplier(srv.URL), &fakeCallLogRepo{})

	_, err := client.ListAnalogs(context.Background(), "N", "A", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHTTP))
}
