// Package store — Firestore-backed Store implementation.
//
// Collection layout:
//
//	users/{userId}
//	agents/{agentId}
//	agents/{agentId}/documents/{docId}
//	agents/{agentId}/conversations/{convId}
//	agents/{agentId}/conversations/{convId}/messages/{msgId}
//	meta/bootstrap  (sentinel for the one-time admin claim)
//
// All timestamps are server-assigned; writes rely on Firestore's
// per-document atomicity only.
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/atriumhq/atrium/pkg/models"
)

type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to Firestore using application-default
// credentials for the given project.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	// A cheap read against the bootstrap sentinel doubles as a
	// connectivity check.
	_, err := s.client.Collection("meta").Doc("bootstrap").Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) agentDoc(id string) *firestore.DocumentRef {
	return s.client.Collection("agents").Doc(id)
}

func (s *FirestoreStore) convDoc(agentID, convID string) *firestore.DocumentRef {
	return s.agentDoc(agentID).Collection("conversations").Doc(convID)
}

// ── Agents ──────────────────────────────────────────────────

func (s *FirestoreStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	iter := s.client.Collection("agents").OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.Agent
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		var a models.Agent
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("decode agent %s: %w", snap.Ref.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *FirestoreStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	snap, err := s.agentDoc(id).Get(ctx)
	if notFound(err) {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	var a models.Agent
	if err := snap.DataTo(&a); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	return &a, nil
}

func (s *FirestoreStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if _, err := s.agentDoc(agent.ID).Set(ctx, agent); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateAgent(ctx context.Context, id string, upd models.AgentUpdate) (*models.Agent, error) {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if upd.Name != nil {
		updates = append(updates, firestore.Update{Path: "name", Value: *upd.Name})
	}
	if upd.Description != nil {
		updates = append(updates, firestore.Update{Path: "description", Value: *upd.Description})
	}
	if upd.Settings != nil {
		updates = append(updates, firestore.Update{Path: "settings", Value: *upd.Settings})
	}
	if upd.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *upd.Status})
	}

	if _, err := s.agentDoc(id).Update(ctx, updates); err != nil {
		if notFound(err) {
			return nil, &ErrNotFound{Entity: "agent", Key: id}
		}
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return s.GetAgent(ctx, id)
}

func (s *FirestoreStore) DeleteAgent(ctx context.Context, id string) error {
	// Subcollections do not cascade; delete the documents and
	// conversations explicitly before removing the agent record.
	if err := s.deleteCollection(ctx, s.agentDoc(id).Collection("documents")); err != nil {
		return err
	}
	convs := s.agentDoc(id).Collection("conversations").Documents(ctx)
	defer convs.Stop()
	for {
		snap, err := convs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if err := s.DeleteConversation(ctx, id, snap.Ref.ID); err != nil {
			return err
		}
	}
	if _, err := s.agentDoc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (s *FirestoreStore) AdjustDocumentCount(ctx context.Context, id string, delta int) error {
	_, err := s.agentDoc(id).Update(ctx, []firestore.Update{
		{Path: "documentCount", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if notFound(err) {
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	if err != nil {
		return fmt.Errorf("adjust document count: %w", err)
	}
	return nil
}

// ── Documents ───────────────────────────────────────────────

func (s *FirestoreStore) ListDocuments(ctx context.Context, agentID string) ([]models.Document, error) {
	iter := s.agentDoc(agentID).Collection("documents").OrderBy("uploadedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		var d models.Document
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", snap.Ref.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *FirestoreStore) GetDocument(ctx context.Context, agentID, docID string) (*models.Document, error) {
	snap, err := s.agentDoc(agentID).Collection("documents").Doc(docID).Get(ctx)
	if notFound(err) {
		return nil, &ErrNotFound{Entity: "document", Key: docID}
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	var d models.Document
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &d, nil
}

func (s *FirestoreStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	ref := s.agentDoc(doc.AgentID).Collection("documents").Doc(doc.ID)
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *FirestoreStore) SetDocumentStatus(ctx context.Context, agentID, docID string, st models.DocumentStatus, errMsg string, chunkCount int) error {
	ref := s.agentDoc(agentID).Collection("documents").Doc(docID)

	// Transaction so the forward-only check and the write are atomic.
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if notFound(err) {
			return &ErrNotFound{Entity: "document", Key: docID}
		}
		if err != nil {
			return err
		}
		var d models.Document
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		if !d.Status.Advances(st) {
			return &ErrInvalidTransition{From: d.Status, To: st}
		}

		updates := []firestore.Update{{Path: "status", Value: st}}
		if st == models.DocumentError {
			updates = append(updates, firestore.Update{Path: "errorMessage", Value: errMsg})
		}
		if st == models.DocumentIndexed {
			updates = append(updates, firestore.Update{Path: "chunkCount", Value: chunkCount})
		}
		return tx.Update(ref, updates)
	})
}

func (s *FirestoreStore) DeleteDocument(ctx context.Context, agentID, docID string) error {
	ref := s.agentDoc(agentID).Collection("documents").Doc(docID)
	if _, err := ref.Get(ctx); notFound(err) {
		return &ErrNotFound{Entity: "document", Key: docID}
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ── Conversations ───────────────────────────────────────────

func (s *FirestoreStore) TouchConversation(ctx context.Context, agentID, convID, userID string) error {
	_, err := s.convDoc(agentID, convID).Set(ctx, map[string]any{
		"id":            convID,
		"agentId":       agentID,
		"userId":        userID,
		"lastMessageAt": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *FirestoreStore) AppendMessage(ctx context.Context, agentID, convID string, msg *models.Message) error {
	ref := s.convDoc(agentID, convID).Collection("messages").NewDoc()
	msg.ID = ref.ID
	if _, err := ref.Set(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListMessages(ctx context.Context, agentID, convID string, limit int) ([]models.Message, error) {
	q := s.convDoc(agentID, convID).Collection("messages").Query
	if limit > 0 {
		// Most recent `limit`, returned ascending.
		q = q.OrderBy("timestamp", firestore.Desc).Limit(limit)
	} else {
		q = q.OrderBy("timestamp", firestore.Asc)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []models.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		var msg models.Message
		if err := snap.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", snap.Ref.ID, err)
		}
		out = append(out, msg)
	}

	if limit > 0 {
		// Reverse the descending page back into ascending order.
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (s *FirestoreStore) DeleteConversation(ctx context.Context, agentID, convID string) error {
	if err := s.deleteCollection(ctx, s.convDoc(agentID, convID).Collection("messages")); err != nil {
		return err
	}
	if _, err := s.convDoc(agentID, convID).Delete(ctx); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// deleteCollection removes every document in a collection in batches.
func (s *FirestoreStore) deleteCollection(ctx context.Context, coll *firestore.CollectionRef) error {
	bw := s.client.BulkWriter(ctx)
	iter := coll.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("scan %s: %w", coll.Path, err)
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return fmt.Errorf("delete %s: %w", snap.Ref.Path, err)
		}
	}
	bw.End()
	return nil
}

// ── Users ───────────────────────────────────────────────────

func (s *FirestoreStore) ListUsers(ctx context.Context) ([]models.User, error) {
	iter := s.client.Collection("users").OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.User
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		var u models.User
		if err := snap.DataTo(&u); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *FirestoreStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	snap, err := s.client.Collection("users").Doc(id).Get(ctx)
	if notFound(err) {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func (s *FirestoreStore) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.client.Collection("users").Doc(user.ID).Set(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateUserRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	_, err := s.client.Collection("users").Doc(id).Update(ctx, []firestore.Update{
		{Path: "role", Value: role},
	})
	if notFound(err) {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *FirestoreStore) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.client.Collection("users").Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastLogin", Value: firestore.ServerTimestamp},
	})
	if notFound(err) {
		return &ErrNotFound{Entity: "user", Key: id}
	}
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// ClaimBootstrapAdmin creates the meta/bootstrap sentinel inside a
// transaction. Exactly one caller per deployment observes the document
// missing and wins the claim; concurrent first logins cannot both
// become admin.
func (s *FirestoreStore) ClaimBootstrapAdmin(ctx context.Context) (bool, error) {
	ref := s.client.Collection("meta").Doc("bootstrap")
	claimed := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if err == nil {
			claimed = false
			return nil
		}
		if !notFound(err) {
			return err
		}
		claimed = true
		return tx.Create(ref, map[string]any{
			"adminClaimedAt": firestore.ServerTimestamp,
		})
	})
	if err != nil {
		return false, fmt.Errorf("claim bootstrap admin: %w", err)
	}
	return claimed, nil
}
