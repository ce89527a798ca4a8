package semboot

import "fmt"

// Remove destroys the semaphore set identified by key. It returns
// ErrNotFound if no such set exists, including when it was already removed.
//
// Removal is never implicit: closing handles leaves the set in place, and
// any participant with sufficient privilege may call Remove.
func Remove(key Key) error {
	if key == PrivateKey {
		return fmt.Errorf("%w: IPC_PRIVATE key cannot be looked up", ErrInvalidArgument)
	}
	id, err := semget(key, 0, 0)
	if err != nil {
		return classify("semget", key, err)
	}
	if err := semRemoveID(id); err != nil {
		return classify("remove", key, err)
	}
	return nil
}

// Stat looks up the set identified by key without joining it.
func Stat(key Key) (SetInfo, error) {
	if key == PrivateKey {
		return SetInfo{}, fmt.Errorf("%w: IPC_PRIVATE key cannot be looked up", ErrInvalidArgument)
	}
	id, err := semget(key, 0, 0)
	if err != nil {
		return SetInfo{}, classify("semget", key, err)
	}
	st, err := semStatID(id)
	if err != nil {
		return SetInfo{}, classify("stat", key, err)
	}
	return newSetInfo(id, st), nil
}
