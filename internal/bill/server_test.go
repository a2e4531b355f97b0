package bill

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/time/rate"

	"github.com/zombor/bill-extractor/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		cfg         ServerConfig
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, cfg, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		clock := &steppingTimeSource{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, scanner, storage, &sequenceIDGenerator{}, clock)
		cfg = ServerConfig{Version: "1.2.3"}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	readBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	postJSON := func(body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+"/extract-amounts", "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	postFile := func(filename string, data []byte) *http.Response {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		part, _ := writer.CreateFormFile("file", filename)
		part.Write(data)
		writer.Close()

		resp, err := http.Post(ghttpServer.URL()+"/extract-amounts", writer.FormDataContentType(), &b)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleHealth", func() {
		It("should report the service as running", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]string
			Expect(json.Unmarshal([]byte(readBody(resp)), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("status", "ok"))
			Expect(body).To(HaveKeyWithValue("version", "1.2.3"))
			Expect(body).To(HaveKey("timestamp"))
		})
	})

	Describe("handleExtractAmounts", func() {
		When("JSON text is submitted", func() {
			It("should return the final result", func() {
				resp := postJSON(`{"text": "Total: INR 1200 | Paid: 1000 | Due: 200 | Discount: 10%"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(resp.Header.Get("X-Extraction-ID")).To(Equal("id-1"))
				Expect(readBody(resp)).To(MatchJSON(`{
					"currency": "INR",
					"amounts": [
						{"type": "total_bill", "value": 1200, "source": "text: 'total: 1200'"},
						{"type": "paid", "value": 1000, "source": "text: 'paid: 1000'"},
						{"type": "due", "value": 200, "source": "text: 'due: 200'"}
					],
					"status": "ok",
					"raw_tokens": ["1200", "1000", "200", "10%"],
					"overall_confidence": 0.9
				}`))
			})

			It("should keep the extraction", func() {
				readBody(postJSON(`{"text": "Total 500"}`))
				Expect(db.extractions).To(HaveKey("id-1"))
			})
		})

		When("form text is submitted", func() {
			It("should return the final result", func() {
				resp, err := http.PostForm(ghttpServer.URL()+"/extract-amounts", url.Values{"text": {"Paid: 300"}})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(ContainSubstring(`"type":"paid"`))
			})
		})

		When("multipart text is submitted", func() {
			It("should use the text field", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.WriteField("text", "Due: 45")
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/extract-amounts", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(ContainSubstring(`"type":"due"`))
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("the text has no amounts", func() {
			It("should report a noisy document with status OK", func() {
				resp := postJSON(`{"text": "asdf qwer"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(MatchJSON(`{"status": "no_amounts_found", "reason": "document too noisy"}`))
			})
		})

		When("the text is blank", func() {
			It("should return Bad Request", func() {
				resp := postJSON(`{"text": "   "}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(MatchJSON(`{"error": "Text input cannot be empty"}`))
			})
		})

		When("no input is provided", func() {
			It("should return Bad Request", func() {
				resp := postJSON(`{}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(MatchJSON(`{"error": "Either an image file or text must be provided"}`))
			})

			It("should reject an empty form", func() {
				resp, err := http.PostForm(ghttpServer.URL()+"/extract-amounts", url.Values{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the JSON body is malformed", func() {
			It("should return Bad Request", func() {
				resp := postJSON(`{"text":`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Invalid request body"))
			})
		})

		When("the multipart body is malformed", func() {
			It("should return Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/extract-amounts", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Error parsing form"))
			})
		})

		When("an image is uploaded", func() {
			It("should run the pipeline on the recognized text", func() {
				resp := postFile("bill.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body := readBody(resp)
				Expect(body).To(ContainSubstring(`"status":"ok"`))
				Expect(body).To(ContainSubstring(`"overall_confidence":0.85`))
				Expect(scanner.calls).To(Equal(1))
			})

			It("should store the upload", func() {
				readBody(postFile("bill.jpg", []byte("fake image data")))
				Expect(storage.files).To(HaveKey("id-1_bill.jpg"))
				Expect(db.extractions["id-1"].ContentType).To(Equal("image/jpeg"))
			})
		})

		When("an empty image is uploaded", func() {
			It("should return Bad Request", func() {
				resp := postFile("bill.png", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Uploaded file is empty"))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("provider down")
			})

			It("should return Internal Server Error", func() {
				resp := postFile("bill.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(readBody(resp)).To(ContainSubstring("provider down"))
			})
		})

		When("the image cannot be converted", func() {
			BeforeEach(func() {
				scanner.scanErr = scanning.ErrImageConversion
			})

			It("should return Bad Request", func() {
				resp := postFile("bill.heic", []byte("not heic"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("no scanner is configured", func() {
			BeforeEach(func() {
				service = NewServiceWithDeps(db, nil, storage, &sequenceIDGenerator{}, &steppingTimeSource{})
				setupServer()
			})

			It("should return Service Unavailable for images", func() {
				resp := postFile("bill.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				resp.Body.Close()
			})

			It("should still accept text", func() {
				resp := postJSON(`{"text": "Total 90"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("the rate limit is exhausted", func() {
			BeforeEach(func() {
				cfg.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
				setupServer()
			})

			It("should return Too Many Requests", func() {
				readBody(postJSON(`{"text": "Total 90"}`))
				resp := postJSON(`{"text": "Total 90"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
				Expect(readBody(resp)).To(MatchJSON(`{"error": "Too Many Requests"}`))
			})
		})

		When("basic auth is configured", func() {
			BeforeEach(func() {
				cfg.BasicAuth = BasicAuth{Username: "admin", Password: "secret"}
				setupServer()
			})

			It("should reject missing credentials", func() {
				resp := postJSON(`{"text": "Total 90"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
				resp.Body.Close()
			})

			It("should accept valid credentials", func() {
				req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/extract-amounts", strings.NewReader(`{"text": "Total 90"}`))
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			It("should leave the health check open", func() {
				resp, err := http.Get(ghttpServer.URL() + "/health")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		It("should not allow GET", func() {
			resp, err := http.Get(ghttpServer.URL() + "/extract-amounts")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			resp.Body.Close()
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/extract-amounts", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Expose-Headers")).To(ContainSubstring("X-Extraction-ID"))
			resp.Body.Close()
		})
	})

	Describe("handleListExtractions", func() {
		When("extractions exist", func() {
			BeforeEach(func() {
				_, err := service.ExtractText("Total 100")
				Expect(err).NotTo(HaveOccurred())
				_, err = service.ExtractText("Total 200")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return them newest first", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var extractions []Extraction
				Expect(json.Unmarshal([]byte(readBody(resp)), &extractions)).To(Succeed())
				Expect(extractions).To(HaveLen(2))
				Expect(extractions[0].ID).To(Equal("id-2"))
			})
		})

		When("no extractions exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
				Expect(err).NotTo(HaveOccurred())
				Expect(readBody(resp)).To(MatchJSON(`[]`))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(readBody(resp)).To(ContainSubstring("Internal server error"))
			})
		})
	})

	Describe("handleGetExtraction", func() {
		When("the extraction exists", func() {
			BeforeEach(func() {
				_, err := service.ExtractText("Total 100")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var extraction Extraction
				Expect(json.Unmarshal([]byte(readBody(resp)), &extraction)).To(Succeed())
				Expect(extraction.Text).To(Equal("Total 100"))
				Expect(extraction.Result.Amounts[0].Value).To(Equal(100))
			})
		})

		When("the extraction does not exist", func() {
			It("should return Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetExtraction failures", func() {
		BeforeEach(func() {
			db.getErr = errors.New("database error")
		})

		It("should return Internal Server Error", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(readBody(resp)).To(ContainSubstring("Internal server error"))
		})

		It("should return Internal Server Error for files", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id-1/file")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			resp.Body.Close()
		})
	})

	Describe("handleGetExtractionFile", func() {
		When("the extraction has an upload", func() {
			BeforeEach(func() {
				readBody(postFile("bill.png", []byte("png bytes")))
			})

			It("should return the file", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id-1/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
				Expect(readBody(resp)).To(Equal("png bytes"))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				readBody(postFile("bill.png", []byte("png bytes")))
				storage.getErr = errors.New("disk failure")
			})

			It("should return Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id-1/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})

		When("the extraction came from text", func() {
			BeforeEach(func() {
				_, err := service.ExtractText("Total 100")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id-1/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleDeleteExtraction", func() {
		deleteExtraction := func(id string) *http.Response {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/extractions/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the extraction exists", func() {
			BeforeEach(func() {
				_, err := service.ExtractText("Total 100")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return No Content", func() {
				resp := deleteExtraction("id-1")
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				resp.Body.Close()
				Expect(db.extractions).To(BeEmpty())
			})
		})

		When("the extraction does not exist", func() {
			It("should return Not Found", func() {
				resp := deleteExtraction("missing")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				_, err := service.ExtractText("Total 100")
				Expect(err).NotTo(HaveOccurred())
				db.deleteErr = errors.New("database error")
			})

			It("should return Internal Server Error", func() {
				resp := deleteExtraction("id-1")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleExportExtractions", func() {
		It("should return a workbook attachment", func() {
			_, err := service.ExtractText("Total 100")
			Expect(err).NotTo(HaveOccurred())

			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/export.xlsx")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("extractions.xlsx"))
			Expect(readBody(resp)).To(HavePrefix("PK"))
		})
	})
})
