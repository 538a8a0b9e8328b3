package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/majlis-chat/majlis/internal/config"
	"github.com/majlis-chat/majlis/internal/database"
	"github.com/majlis-chat/majlis/internal/hub"
	"github.com/majlis-chat/majlis/internal/stats"
	"github.com/majlis-chat/majlis/internal/testutil"
	"github.com/majlis-chat/majlis/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T, db database.Repository, h *hub.Hub) *App {
	t.Helper()

	app, err := NewApp(http.NewServeMux(), testutil.TestLogger(t), h, db, &config.Config{
		ServerAddr: "localhost:8080",
		SigningKey: []byte("test-signing-key"),
	})
	assert.NoError(t, err)

	return app
}

func newTestHub(t *testing.T, db database.Repository) *hub.Hub {
	t.Helper()

	su := &stats.MockUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	h, err := hub.NewHub(testutil.TestLogger(t), db, su)
	assert.NoError(t, err)

	return h
}

// findCookie returns the named cookie from the response recorder, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	if s, ok := v.(string); ok {
		buf.WriteString(s)
		return buf
	}
	assert.NoError(t, json.NewEncoder(buf).Encode(v))

	return buf
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "fatima",
		EmailAddress: "fatima@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	tcases := []struct {
		name         string
		body         any
		expectedCode int
		mockUser     *database.User
		mockErr      error
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			expectedCode: http.StatusCreated,
			mockUser:     &expectedUser,
		},
		{
			name:         "fails with invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing email",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Password: "password",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			expectedCode: http.StatusInternalServerError,
			mockUser:     &database.User{},
			mockErr:      errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			if tc.mockUser != nil {
				mockRepo.On("CreateAccount", mock.AnythingOfType("database.CreateAccountParams")).
					Return(*tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body))
			app.createAccount(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusCreated {
				var user types.User
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
				assert.Equal(t, expectedUser.Id, user.Id)
				assert.Equal(t, expectedUser.Username, user.Username)
				assert.Empty(t, user.Password, "expected password to never appear in responses")
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestLoginHandler(t *testing.T) {
	pwdHash, err := hashPassword("password")
	assert.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		Username:     "fatima",
		EmailAddress: "fatima@example.com",
		PasswordHash: pwdHash,
	}

	t.Run("successful login sets a session cookie", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, LoginRequest{Email: dbUser.EmailAddress, Password: "password"}))
		app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		assert.NotNil(t, cookie, "expected a session cookie")
		userId, err := app.extractUserIdFromToken(cookie.Value)
		assert.NoError(t, err)
		assert.Equal(t, dbUser.Id, userId)
		mockRepo.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, LoginRequest{Email: dbUser.EmailAddress, Password: "nope"}))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey))
	})

	t.Run("unknown email", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetAccountByEmail", "ghost@example.com").Return(database.User{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, LoginRequest{Email: "ghost@example.com", Password: "password"}))
		app.login(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			jsonBody(t, LoginRequest{Email: dbUser.EmailAddress}))
		app.login(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	assert.NotNil(t, cookie)
	assert.Empty(t, cookie.Value, "expected the cookie to be overwritten")
}

func TestAccountHandler(t *testing.T) {
	dbUser := database.User{Id: 1, Username: "fatima", EmailAddress: "fatima@example.com"}

	t.Run("get account", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetAccountById", 1).Return(dbUser, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.account(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, dbUser.Username, user.Username)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		app.account(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("update account", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetAccountById", 1).Return(dbUser, nil).Once()
		mockRepo.On("UpdateAccount", mock.MatchedBy(func(p database.UpdateAccountParams) bool {
			return p.UserId == 1 && p.Username == "fatima_z"
		})).Return(database.User{Id: 1, Username: "fatima_z"}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/account",
			jsonBody(t, UpdateAccountRequest{Username: "fatima_z", Password: "newpassword"}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.account(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("method not allowed", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/account", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.account(rr, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestCreateRoomHandler(t *testing.T) {
	t.Run("creates a room with a generated id", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return p.Name == "majlis" && p.OwnerId == 1 && p.ExternalId != ""
		})).Return(database.Room{Id: 2, Name: "majlis", ExternalId: "abc123", Kind: "public", OwnerId: 1}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms",
			jsonBody(t, CreateRoomRequest{Name: "majlis", Description: "the sitting room"}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, "abc123", room.ExternalId)
		assert.Equal(t, types.RoomKindPublic, room.Kind)
		mockRepo.AssertExpectations(t)
	})

	t.Run("name is required", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms",
			jsonBody(t, CreateRoomRequest{Description: "no name"}))
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetRoomHandler(t *testing.T) {
	t.Run("returns room with subscriber presence", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "abc123").
			Return(database.Room{Id: 2, ExternalId: "abc123", Kind: "public"}, nil).Once()
		mockRepo.On("GetRoomWithSubscribers", 2).Return(&database.Room{
			Id:         2,
			ExternalId: "abc123",
			Name:       "majlis",
			Kind:       "public",
			SeqId:      7,
			Subscriptions: []database.Subscription{
				{AccountId: 1, Username: "fatima"},
				{AccountId: 2, Username: "omar"},
			},
		}, nil).Once()

		app := newTestApp(t, mockRepo, newTestHub(t, mockRepo))
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/rooms?id=abc123", nil)
		app.getRoom(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, 7, room.SeqId)
		assert.Len(t, room.Subscribers, 2)
		for _, sub := range room.Subscribers {
			assert.False(t, sub.IsOnline, "expected no one online with no live connections")
		}
		mockRepo.AssertExpectations(t)
	})

	t.Run("missing id", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		app.getRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/rooms?id=nope", nil)
		app.getRoom(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDeleteRoomHandler(t *testing.T) {
	room := database.Room{Id: 2, ExternalId: "abc123", OwnerId: 1}

	t.Run("owner deletes the room", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "abc123").Return(room, nil).Once()
		mockRepo.On("DeleteRoom", 2).Return(nil).Once()

		app := newTestApp(t, mockRepo, newTestHub(t, mockRepo))
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=abc123", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "abc123").Return(room, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=abc123", nil)
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "DeleteRoom", mock.Anything)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	room := database.Room{Id: 2, ExternalId: "abc123", Kind: "public"}
	dbMessages := []database.Message{
		{SeqId: 1, RoomId: 2, UserId: 1, Username: "fatima", Content: "marhaba", CreatedAt: time.Now().UTC()},
		{SeqId: 2, RoomId: 2, UserId: 2, Username: "omar", Content: "ahlan", CreatedAt: time.Now().UTC()},
	}

	t.Run("room history", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "abc123").Return(room, nil).Once()
		mockRepo.On("GetMessages", 2, 0, 0, 50).Return(dbMessages, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=abc123&limit=50", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var messages []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
		assert.Len(t, messages, 2)
		assert.Equal(t, 1, messages[0].SeqId)
		assert.Equal(t, "marhaba", messages[0].Content)
		mockRepo.AssertExpectations(t)
	})

	t.Run("private history derives the pair key", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "2_5").
			Return(database.Room{Id: 9, ExternalId: "2_5", Kind: "private"}, nil).Once()
		mockRepo.On("GetMessages", 9, 0, 0, 0).Return([]database.Message{}, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?user_id=2", nil)
		req = req.WithContext(WithUserId(req.Context(), 5))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("missing addressing", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed window", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "abc123").Return(room, nil).Once()

		app := newTestApp(t, mockRepo, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=abc123&limit=lots", nil)
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockRepo.AssertNotCalled(t, "GetMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetOnlineUsersHandler(t *testing.T) {
	mockRepo := &database.MockRepository{}
	app := newTestApp(t, mockRepo, newTestHub(t, mockRepo))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/online", nil)
	app.getOnlineUsers(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var users []types.User
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
	assert.Empty(t, users)
}
