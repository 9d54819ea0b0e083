package model

import "time"

// Roles carried in the JWT "role" claim and enforced by middleware.
const (
    RoleCustomer = "CUSTOMER"
    RoleStaff    = "STAFF"
    RoleAdmin    = "ADMIN"
)

// User is the account that owns bookings.  Only the password hash is
// stored; hashing happens in the auth handler, the single site that ever
// sees a plaintext password.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email (unique)
    FullName     string    // users.full_name
    PasswordHash string    // users.password_hash (bcrypt)
    Role         string    // users.role
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}
