package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

func (db *PgRepository) CreateAccount(accountParams CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email, created_at",
		accountParams.Username,
		accountParams.EmailAddress,
		accountParams.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, created_at, updated_at",
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, COALESCE(last_seen, created_at), created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.LastSeen,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) TouchLastSeen(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET last_seen = $2 WHERE id = $1",
		accountId,
		time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, kind, seq_id, COALESCE(owner_id, 0), "+
			"COALESCE(user_a, 0), COALESCE(user_b, 0), created_at, updated_at "+
			"FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.Kind,
		&room.SeqId,
		&room.OwnerId,
		&room.UserA,
		&room.UserB,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgRepository) GetRoomWithSubscribers(roomId int) (*Room, error) {
	rows, err := db.conn.Query(
		`SELECT
			r.id,
			r.external_id,
			r.name,
			r.description,
			r.kind,
			r.seq_id,
			COALESCE(r.owner_id, 0),
			r.created_at,
			r.updated_at,
			s.id,
			s.account_id,
			a.username,
			s.last_read_seq_id
		FROM rooms r
		LEFT JOIN subscriptions s ON s.room_id = r.id
		LEFT JOIN accounts a ON a.id = s.account_id
		WHERE r.id = $1`,
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var r Room
		var subId, subAccountId, subLastRead sql.NullInt64
		var subUsername sql.NullString
		if err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Name,
			&r.Description,
			&r.Kind,
			&r.SeqId,
			&r.OwnerId,
			&r.CreatedAt,
			&r.UpdatedAt,
			&subId,
			&subAccountId,
			&subUsername,
			&subLastRead,
		); err != nil {
			return nil, err
		}

		if room == nil {
			room = &r
		}

		if subId.Valid {
			room.Subscriptions = append(room.Subscriptions, Subscription{
				Id:            int(subId.Int64),
				AccountId:     int(subAccountId.Int64),
				Username:      subUsername.String,
				LastReadSeqId: int(subLastRead.Int64),
				RoomId:        room.Id,
			})
		}
	}

	if room == nil {
		return nil, sql.ErrNoRows
	}

	return room, rows.Err()
}

func (db *PgRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO rooms (external_id, name, description, kind, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, 'public', $4, $5, $5) "+
			"RETURNING id, external_id, name, description, kind, seq_id, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Description,
		params.OwnerId,
		now,
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.Kind,
		&room.SeqId,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

// GetOrCreatePrivateRoom returns the room row for a derived pair key,
// inserting it on first use. The insert races harmlessly with concurrent
// callers since the key is unique.
func (db *PgRepository) GetOrCreatePrivateRoom(externalId string, userA, userB int) (Room, error) {
	room, err := db.GetRoomByExternalId(externalId)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Room{}, err
	}

	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO rooms (external_id, kind, user_a, user_b, created_at, updated_at) "+
			"VALUES ($1, 'private', $2, $3, $4, $4) "+
			"RETURNING id, external_id, name, description, kind, seq_id, "+
			"COALESCE(user_a, 0), COALESCE(user_b, 0), created_at, updated_at",
		externalId,
		userA,
		userB,
		now,
	)

	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.Kind,
		&room.SeqId,
		&room.UserA,
		&room.UserB,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return db.GetRoomByExternalId(externalId)
		}
		return Room{}, err
	}

	return room, nil
}

func (db *PgRepository) DeleteRoom(id int) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)
	return err
}

func (db *PgRepository) CreateSubscription(accountId, roomId int) (Subscription, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO subscriptions (account_id, room_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $3) "+
			"RETURNING id, account_id, room_id, "+
			"(SELECT username FROM accounts WHERE id = $1)",
		accountId,
		roomId,
		now,
	)

	var sub Subscription
	err := res.Scan(
		&sub.Id,
		&sub.AccountId,
		&sub.RoomId,
		&sub.Username,
	)

	return sub, err
}

func (db *PgRepository) SubscriptionExists(accountId, roomId int) bool {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM subscriptions WHERE account_id = $1 AND room_id = $2)",
		accountId,
		roomId,
	).Scan(&exists)

	return err == nil && exists
}

func (db *PgRepository) ListSubscriptions(accountId int) ([]Subscription, error) {
	rows, err := db.conn.Query(
		`SELECT
			s.id,
			s.last_read_seq_id,
			s.created_at,
			s.updated_at,
			r.id,
			r.external_id,
			r.name,
			r.description,
			r.kind,
			r.seq_id,
			r.created_at,
			r.updated_at
		FROM subscriptions s
		JOIN rooms r ON r.id = s.room_id
		WHERE s.account_id = $1
		ORDER BY r.updated_at DESC`,
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(
			&sub.Id,
			&sub.LastReadSeqId,
			&sub.CreatedAt,
			&sub.UpdatedAt,
			&sub.Room.Id,
			&sub.Room.ExternalId,
			&sub.Room.Name,
			&sub.Room.Description,
			&sub.Room.Kind,
			&sub.Room.SeqId,
			&sub.Room.CreatedAt,
			&sub.Room.UpdatedAt,
		); err != nil {
			return nil, err
		}

		sub.AccountId = accountId
		sub.RoomId = sub.Room.Id
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (db *PgRepository) DeleteSubscription(accountId, roomId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM subscriptions WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
	)
	return err
}

func (db *PgRepository) UpdateLastReadSeqId(accountId, roomId, seqId int) error {
	_, err := db.conn.Exec(
		"UPDATE subscriptions SET last_read_seq_id = $3, updated_at = $4 "+
			"WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
		seqId,
		time.Now().UTC(),
	)
	return err
}

// SaveMessage stores a message and advances the room's sequence counter
// in one transaction. If either statement fails neither lands, so
// rooms.seq_id can never fall behind the messages table across an
// unload/reload cycle.
func (db *PgRepository) SaveMessage(msg Message) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO messages (room_id, seq_id, account_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5)",
		msg.RoomId,
		msg.SeqId,
		msg.UserId,
		msg.Content,
		msg.CreatedAt,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"UPDATE rooms SET seq_id = $2, updated_at = $3 WHERE id = $1",
		msg.RoomId,
		msg.SeqId,
		msg.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRepository) GetMessages(roomId, since, before, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if before <= 0 {
		before = 1<<31 - 1
	}

	rows, err := db.conn.Query(
		`SELECT m.id, m.seq_id, m.room_id, m.account_id, a.username, m.content, m.created_at
		FROM messages m
		JOIN accounts a ON a.id = m.account_id
		WHERE m.room_id = $1 AND m.seq_id > $2 AND m.seq_id < $3
		ORDER BY m.seq_id DESC
		LIMIT $4`,
		roomId,
		since,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.SeqId,
			&m.RoomId,
			&m.UserId,
			&m.Username,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
