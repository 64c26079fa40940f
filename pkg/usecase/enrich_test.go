package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/repository/memory"
	"github.com/secmon-lab/contrack/pkg/usecase"
)

func seedContact(t *testing.T, repo interfaces.Repository, ev *model.MessageEvent) {
	t.Helper()
	_, err := usecase.NewDeduplicator(repo).Observe(context.Background(), ev, model.DefaultExcerptCap)
	gt.NoError(t, err).Required()
}

func janeEvent() *model.MessageEvent {
	ev := newEvent(tenant1, "42", "m1", "hi, I'm Jane from Acme", baseTime)
	ev.Profile = model.Profile{Name: "Jane", Bio: "VP Eng at Acme"}
	return ev
}

func TestEnricher_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("success records fields", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := acmeExtractor()
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.V(t, model.StringValue(c.Company)).Equal("Acme")
		gt.V(t, model.StringValue(c.Role)).Equal("VP Eng")
		gt.V(t, c.EnrichLock).Nil()
		gt.N(t, c.EnrichAttempts).Equal(1)
		gt.B(t, c.Synced).False()
		gt.N(t, extractor.Calls()).Equal(1)
	})

	t.Run("extraction input carries bio and excerpt", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())

		var got *model.ExtractionInput
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				got = input
				return model.ExtractionSucceeded(&model.ExtractionResult{})
			},
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		_, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, got).NotNil().Required()
		gt.V(t, got.DisplayName).Equal("Jane")
		gt.V(t, got.Bio).Equal("VP Eng at Acme")
		gt.V(t, got.Messages).Equal([]string{"hi, I'm Jane from Acme"})
	})

	t.Run("edit made during extraction is kept", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				_, err := repo.Contact().Patch(ctx, tenant1, "42", func(c *model.Contact) error {
					return c.ApplyEdit(types.EditableFieldCompany, "Initech")
				})
				gt.NoError(t, err)
				return model.ExtractionSucceeded(&model.ExtractionResult{
					Company: strPtr("Acme"),
					Role:    strPtr("VP Eng"),
				})
			},
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.V(t, model.StringValue(c.Company)).Equal("Initech")
		gt.V(t, model.StringValue(c.Role)).Equal("VP Eng")
	})

	t.Run("extraction that always times out leaves nulls", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				<-ctx.Done()
				return model.ExtractionTransient(ctx.Err())
			},
		}
		policy := fastPolicy()
		policy.Timeout = 5 * time.Millisecond
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(policy))

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnrichmentFailed)
		gt.V(t, c.Company).Nil()
		gt.V(t, c.Role).Nil()
		gt.V(t, c.EnrichLock).Nil()
		gt.S(t, c.LastError).Contains("deadline exceeded")
		gt.N(t, extractor.Calls()).Equal(5)

		stored, err := repo.Contact().Get(ctx, tenant1, "42")
		gt.NoError(t, err).Required()
		gt.V(t, stored.Status).Equal(types.ContactStatusEnrichmentFailed)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := &mockExtractor{}
		extractor.ExtractFn = func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
			if extractor.Calls() < 3 {
				return model.ExtractionTransient(errors.New("429 rate limited"))
			}
			return model.ExtractionSucceeded(&model.ExtractionResult{Company: strPtr("Acme")})
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.N(t, extractor.Calls()).Equal(3)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				return model.ExtractionPermanent(errors.New("malformed response"))
			},
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnrichmentFailed)
		gt.V(t, c.LastError).Equal("malformed response")
		gt.N(t, extractor.Calls()).Equal(1)
	})

	t.Run("enriched contact is skipped unless forced", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := acmeExtractor()
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		_, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.N(t, extractor.Calls()).Equal(1)

		c, err = e.Enrich(ctx, tenant1, "42", true)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.N(t, c.EnrichAttempts).Equal(2)
		gt.N(t, extractor.Calls()).Equal(2)
	})

	t.Run("failed contact can be re-enriched", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		failing := true
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				if failing {
					return model.ExtractionPermanent(errors.New("bad"))
				}
				return model.ExtractionSucceeded(&model.ExtractionResult{Company: strPtr("Acme")})
			},
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnrichmentFailed)

		failing = false
		c, err = e.Enrich(ctx, tenant1, "42", true)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.V(t, model.StringValue(c.Company)).Equal("Acme")
		gt.V(t, c.LastError).Equal("")
	})

	t.Run("contact leased by another worker is rejected", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		_, err := repo.Contact().Patch(ctx, tenant1, "42", func(c *model.Contact) error {
			c.Status = types.ContactStatusEnriching
			c.EnrichLock = &model.EnrichLock{Owner: "other", ExpiresAt: time.Now().Add(time.Minute)}
			return nil
		})
		gt.NoError(t, err).Required()

		extractor := acmeExtractor()
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		_, err = e.Enrich(ctx, tenant1, "42", true)
		gt.Error(t, err).Is(usecase.ErrContactLocked)
		gt.N(t, extractor.Calls()).Equal(0)
	})

	t.Run("expired lease is taken over", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		_, err := repo.Contact().Patch(ctx, tenant1, "42", func(c *model.Contact) error {
			c.Status = types.ContactStatusEnriching
			c.EnrichLock = &model.EnrichLock{Owner: "crashed", ExpiresAt: time.Now().Add(-time.Minute)}
			return nil
		})
		gt.NoError(t, err).Required()

		e := usecase.NewEnricher(repo, acmeExtractor(), usecase.WithExtractionPolicy(fastPolicy()))
		c, err := e.Enrich(ctx, tenant1, "42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
	})

	t.Run("same contact is not enriched twice concurrently", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())

		started := make(chan struct{})
		unblock := make(chan struct{})
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				close(started)
				<-unblock
				return model.ExtractionSucceeded(&model.ExtractionResult{})
			},
		}
		policy := fastPolicy()
		policy.Timeout = 0
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(policy))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Enrich(ctx, tenant1, "42", false)
			gt.NoError(t, err)
		}()

		<-started
		_, err := e.Enrich(ctx, tenant1, "42", true)
		gt.Error(t, err).Is(usecase.ErrEnrichmentInFlight)

		// a second process sees the row lease
		other := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(policy))
		_, err = other.Enrich(ctx, tenant1, "42", true)
		gt.Error(t, err).Is(usecase.ErrContactLocked)

		close(unblock)
		wg.Wait()
		gt.N(t, extractor.Calls()).Equal(1)
	})

	t.Run("result is discarded when the lease was lost", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				_, err := repo.Contact().Patch(ctx, tenant1, "42", func(c *model.Contact) error {
					c.EnrichLock = &model.EnrichLock{Owner: "thief", ExpiresAt: time.Now().Add(time.Minute)}
					return nil
				})
				if err != nil {
					return model.ExtractionPermanent(err)
				}
				return model.ExtractionSucceeded(&model.ExtractionResult{Company: strPtr("Acme")})
			},
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		_, err := e.Enrich(ctx, tenant1, "42", false)
		gt.Error(t, err).Is(usecase.ErrLeaseLost)

		c, err := repo.Contact().Get(ctx, tenant1, "42")
		gt.NoError(t, err).Required()
		gt.V(t, c.Company).Nil()
		gt.V(t, c.EnrichLock.Owner).Equal("thief")
	})

	t.Run("cancellation hands the contact back", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, janeEvent())

		cctx, cancel := context.WithCancel(ctx)
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
				cancel()
				<-ctx.Done()
				return model.ExtractionTransient(ctx.Err())
			},
		}
		e := usecase.NewEnricher(repo, extractor, usecase.WithExtractionPolicy(fastPolicy()))

		_, err := e.Enrich(cctx, tenant1, "42", false)
		gt.Error(t, err).Is(context.Canceled)

		c, err := repo.Contact().Get(ctx, tenant1, "42")
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusNew)
		gt.V(t, c.EnrichLock).Nil()
	})

	t.Run("profile lookup completes missing fields", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, newEvent(tenant1, "U42", "m1", "hello", baseTime))

		var input *model.ExtractionInput
		extractor := &mockExtractor{
			ExtractFn: func(ctx context.Context, in *model.ExtractionInput) model.ExtractionReply {
				input = in
				return model.ExtractionSucceeded(&model.ExtractionResult{})
			},
		}
		lookup := &mockProfileLookup{
			LookupProfileFn: func(ctx context.Context, userID string) (*model.Profile, error) {
				gt.V(t, userID).Equal("U42")
				return &model.Profile{Name: "Jane Doe", Handle: "jane", Bio: "VP Eng at Acme"}, nil
			},
		}
		e := usecase.NewEnricher(repo, extractor,
			usecase.WithExtractionPolicy(fastPolicy()),
			usecase.WithProfileLookup(tenant1, lookup),
		)

		c, err := e.Enrich(ctx, tenant1, "U42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.DisplayName).Equal("Jane Doe")
		gt.V(t, c.Handle).Equal("jane")
		gt.V(t, c.Bio).Equal("VP Eng at Acme")
		gt.V(t, input.Bio).Equal("VP Eng at Acme")
	})

	t.Run("profile lookup failure does not stop enrichment", func(t *testing.T) {
		repo := memory.New()
		seedContact(t, repo, newEvent(tenant1, "U42", "m1", "hello", baseTime))
		lookup := &mockProfileLookup{
			LookupProfileFn: func(ctx context.Context, userID string) (*model.Profile, error) {
				return nil, errors.New("user_not_found")
			},
		}
		e := usecase.NewEnricher(repo, acmeExtractor(),
			usecase.WithExtractionPolicy(fastPolicy()),
			usecase.WithProfileLookup(tenant1, lookup),
		)

		c, err := e.Enrich(ctx, tenant1, "U42", false)
		gt.NoError(t, err).Required()
		gt.V(t, c.Status).Equal(types.ContactStatusEnriched)
		gt.V(t, c.DisplayName).Equal("")
	})

	t.Run("missing contact", func(t *testing.T) {
		e := usecase.NewEnricher(memory.New(), acmeExtractor())
		_, err := e.Enrich(ctx, tenant1, "404", false)
		gt.Error(t, err).Is(interfaces.ErrNotFound)
	})
}

func TestEnricher_ReleaseLease(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedContact(t, repo, janeEvent())
	_, err := repo.Contact().Patch(ctx, tenant1, "42", func(c *model.Contact) error {
		c.Status = types.ContactStatusEnriching
		c.EnrichLock = &model.EnrichLock{Owner: "crashed", ExpiresAt: time.Now().Add(time.Hour)}
		return nil
	})
	gt.NoError(t, err).Required()

	e := usecase.NewEnricher(repo, acmeExtractor())
	gt.NoError(t, e.ReleaseLease(ctx, tenant1, "42")).Required()

	c, err := repo.Contact().Get(ctx, tenant1, "42")
	gt.NoError(t, err).Required()
	gt.V(t, c.Status).Equal(types.ContactStatusNew)
	gt.V(t, c.EnrichLock).Nil()

	// releasing again is a no-op
	gt.NoError(t, e.ReleaseLease(ctx, tenant1, "42"))
	again, err := repo.Contact().Get(ctx, tenant1, "42")
	gt.NoError(t, err).Required()
	gt.V(t, again.Revision).Equal(c.Revision)
}

func TestRetryPolicy_Budget(t *testing.T) {
	p := usecase.DefaultRetryPolicy()
	// 5 calls of 30s plus waits of 2+4+8+16s
	gt.V(t, p.Budget()).Equal(180 * time.Second)
	gt.B(t, p.Budget() < usecase.DefaultLeaseTTL).True()
}

func TestCallWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		outcome, err := usecase.CallWithRetry(ctx, fastPolicy(), func(ctx context.Context) (types.Outcome, error) {
			calls++
			return types.OutcomeTransient, errors.New("unavailable")
		})
		gt.V(t, outcome).Equal(types.OutcomeTransient)
		gt.Error(t, err)
		gt.N(t, calls).Equal(5)
	})

	t.Run("transient without error is still retried", func(t *testing.T) {
		calls := 0
		outcome, err := usecase.CallWithRetry(ctx, fastPolicy(), func(ctx context.Context) (types.Outcome, error) {
			calls++
			if calls == 2 {
				return types.OutcomeSuccess, nil
			}
			return types.OutcomeTransient, nil
		})
		gt.NoError(t, err)
		gt.V(t, outcome).Equal(types.OutcomeSuccess)
		gt.N(t, calls).Equal(2)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		outcome, err := usecase.CallWithRetry(ctx, fastPolicy(), func(ctx context.Context) (types.Outcome, error) {
			calls++
			return types.OutcomePermanent, errors.New("forbidden")
		})
		gt.V(t, outcome).Equal(types.OutcomePermanent)
		gt.S(t, err.Error()).Equal("forbidden")
		gt.N(t, calls).Equal(1)
	})

	t.Run("per call timeout", func(t *testing.T) {
		policy := fastPolicy()
		policy.Timeout = 5 * time.Millisecond
		policy.MaxAttempts = 1
		_, err := usecase.CallWithRetry(ctx, policy, func(ctx context.Context) (types.Outcome, error) {
			<-ctx.Done()
			return types.OutcomeTransient, ctx.Err()
		})
		gt.Error(t, err).Is(context.DeadlineExceeded)
	})
}
