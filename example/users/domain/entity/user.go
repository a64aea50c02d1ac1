package entity

// User は users ファイルの一行に対応するレコードです。
type User struct {
	Name  string `row:"name"`
	Email string `row:"email"`
	Age   uint8  `row:"age"`
}
