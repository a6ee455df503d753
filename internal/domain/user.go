package domain

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type User struct {
	ID         string `db:"id" json:"id"`
	Email      string `db:"email" json:"email"`
	FullName   string `db:"full_name" json:"full_name"`
	NIK        string `db:"nik" json:"nik"`
	Department string `db:"department" json:"department"`
	Phone      string `db:"phone" json:"phone"`
	Role       string `db:"role" json:"role"`
	Hash       string `db:"password_hash" json:"-"`
	CreatedAt  string `db:"created_at" json:"created_at"`
	UpdatedAt  string `db:"updated_at" json:"updated_at"`
}

func (u *User) IsAdmin() bool  { return u != nil && u.Role == RoleAdmin }
func (u *User) IsSeller() bool { return u != nil && u.Role == RoleSeller }
