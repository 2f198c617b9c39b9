package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/halfmoonlabs/engram/pkg/llm"
	"github.com/halfmoonlabs/engram/pkg/llm/ollama"
)

var _ = Describe("Generator", func() {
	It("should return the reply from a synchronous chat call", func() {
		var gotPath string
		var gotBody map[string]any

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": "hello there"},
				"done":    true,
			})
		}))
		defer server.Close()

		g, err := ollama.New(ollama.Config{BaseURL: server.URL, Model: "test-model"})
		Expect(err).NotTo(HaveOccurred())

		reply, err := g.Generate(context.Background(), "be brief", []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("hello there"))
		Expect(gotPath).To(Equal("/api/chat"))
		Expect(gotBody["stream"]).To(BeFalse())

		// The system prompt rides as the first message.
		msgs := gotBody["messages"].([]any)
		first := msgs[0].(map[string]any)
		Expect(first["role"]).To(Equal("system"))
		Expect(first["content"]).To(Equal("be brief"))
	})

	It("should forward stream deltas and assemble the full text", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enc := json.NewEncoder(w)
			enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "hel"}, "done": false})
			enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "lo"}, "done": false})
			enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": ""}, "done": true})
		}))
		defer server.Close()

		g, err := ollama.New(ollama.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		var deltas []string
		full, err := g.GenerateStream(context.Background(), "", []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
		}, func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(full).To(Equal("hello"))
		Expect(deltas).To(Equal([]string{"hel", "lo"}))
	})

	It("should surface non-200 responses as errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		g, err := ollama.New(ollama.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Generate(context.Background(), "", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
		Expect(err).To(MatchError(ContainSubstring("404")))
	})
})
