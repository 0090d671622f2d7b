package sqlinline

// QAppendHistoryEntry inserts an entry and trims the client's history to the
// newest $9 rows in one statement. Both parts see the same snapshot, so the
// prune keeps $9-1 existing rows to make room for the new one.
const QAppendHistoryEntry = `--sql c9b661c1-0225-4586-867f-606944b0c277
with pruned as (
  delete from history_entries
  where client_id = $2::text
    and id not in (
      select id
      from history_entries
      where client_id = $2::text
      order by created_at desc
      limit greatest($9::int - 1, 0)
    )
)
insert into history_entries (
  id,
  client_id,
  session_id,
  quality,
  formats,
  failed,
  thumbnail,
  created_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text[],
  $6::text[],
  $7::text,
  $8::timestamptz
);
`

const QListHistory = `--sql 6357d353-b6b4-462b-a80c-fb442ad9e411
select id, session_id, quality, formats, failed, thumbnail, created_at
from history_entries
where client_id = $1::text
order by created_at desc
limit $2::int;
`

const QClearHistory = `--sql 353dfc5f-f771-436c-b854-127ddf053f43
delete from history_entries
where client_id = $1::text;
`
